// Package pdftext downloads paper PDFs and extracts their text content.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperboy/internal/logging"
)

const (
	downloadRetryAttempts  = 3
	downloadRetryBaseDelay = 2 * time.Second
)

// Downloader fetches PDFs over HTTP with retry.
type Downloader struct {
	httpClient *http.Client
	logger     *slog.Logger
	sleeper    func(time.Duration)
}

// DownloaderOption customizes the downloader.
type DownloaderOption func(*Downloader)

// WithDownloaderHTTPClient overrides the default HTTP client.
func WithDownloaderHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithDownloaderSleeper overrides retry sleeps (useful for tests).
func WithDownloaderSleeper(sleeper func(time.Duration)) DownloaderOption {
	return func(d *Downloader) {
		d.sleeper = sleeper
	}
}

// NewDownloader constructs a Downloader. timeoutSeconds bounds each attempt.
func NewDownloader(timeoutSeconds int, logger *slog.Logger, opts ...DownloaderOption) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := 90 * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	downloader := &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(logging.String(logging.FieldComponent, "pdftext.downloader")),
	}
	for _, opt := range opts {
		opt(downloader)
	}
	return downloader
}

// Download fetches the PDF at url into destPath. The file is written to a
// temp path first and renamed so a failed download never leaves a partial
// PDF behind.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("download: empty url")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("download: create directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= downloadRetryAttempts; attempt++ {
		err := d.downloadOnce(ctx, url, destPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == downloadRetryAttempts || ctx.Err() != nil {
			break
		}
		delay := downloadRetryBaseDelay << (attempt - 1)
		d.logger.WarnContext(ctx, "pdf download failed, retrying",
			logging.String("url", url),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("download %s: %w", url, lastErr)
}

func (d *Downloader) downloadOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	tmpPath := destPath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write body: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return errors.New("empty response body")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (d *Downloader) sleep(ctx context.Context, delay time.Duration) error {
	if d.sleeper != nil {
		d.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
