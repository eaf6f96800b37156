package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"paperboy/internal/config"
	"paperboy/internal/logging"
)

// Sender delivers digest emails over SMTP with optional STARTTLS.
type Sender struct {
	cfg       config.Email
	logger    *slog.Logger
	transport func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	now       func() time.Time
}

// SenderOption customizes the sender.
type SenderOption func(*Sender)

// WithTransport overrides the SMTP transport (useful for tests).
func WithTransport(transport func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error) SenderOption {
	return func(s *Sender) {
		if transport != nil {
			s.transport = transport
		}
	}
}

// WithClock overrides the message date clock (useful for tests).
func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSender constructs a Sender from email configuration.
func NewSender(cfg config.Email, logger *slog.Logger, opts ...SenderOption) *Sender {
	if logger == nil {
		logger = logging.NewNop()
	}
	sender := &Sender{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "mailer")),
		now:    time.Now,
	}
	sender.transport = sender.defaultTransport
	for _, opt := range opts {
		opt(sender)
	}
	return sender
}

// Send composes and delivers one plain-text email.
func (s *Sender) Send(ctx context.Context, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return errors.New("mailer: smtp host not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message, err := s.composeMessage(subject, body)
	if err != nil {
		return fmt.Errorf("mailer: compose message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" && s.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.transport(addr, auth, s.cfg.FromAddr, []string{s.cfg.ToAddr}, message); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}

	s.logger.InfoContext(ctx, "email sent",
		logging.String("to", s.cfg.ToAddr),
		logging.String("subject", subject))
	return nil
}

func (s *Sender) composeMessage(subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(s.now())
	header.SetAddressList("From", []*mail.Address{{Address: s.cfg.FromAddr}})
	header.SetAddressList("To", []*mail.Address{{Address: s.cfg.ToAddr}})
	header.SetSubject(subject)

	writer, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(writer, body); err != nil {
		_ = writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// defaultTransport sends via net/smtp, upgrading to STARTTLS when
// configured.
func (s *Sender) defaultTransport(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if !s.cfg.UseTLS {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("smtp rcpt: %w", err)
		}
	}
	data, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := data.Write(msg); err != nil {
		_ = data.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := data.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}
