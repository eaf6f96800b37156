package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"paperboy/internal/classify"
	"paperboy/internal/logging"
	"paperboy/internal/mailer"
	"paperboy/internal/paper"
	"paperboy/internal/store"
	"paperboy/internal/summarize"
)

const (
	stage1RepairContextLimit = 8000
	stage2RepairContextLimit = 12000
)

// processPaper drives one paper through the stage sequence and returns its
// terminal status. Any panic or unexpected error is caught here, recorded as
// a failure, and never propagates to the batch loop.
func (s *Sequencer) processPaper(ctx context.Context, logger *slog.Logger, p paper.Paper) (outcome store.Status) {
	outcome = store.StatusFailed
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "paper processing panicked", logging.Any("panic", r))
			s.markFailed(ctx, logger, p.ID, fmt.Sprintf("panic: %v", r))
			outcome = store.StatusFailed
		}
	}()

	// Stage 1: relevance classification.
	stage1, raw1, err := s.runStage1(ctx, logger, p)
	if err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}
	if err := s.store.MarkStatus(ctx, p.ID, store.StatusStage1OK, store.WithStage1Payload(raw1)); err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}

	// Relevance gate.
	maxRelevance := stage1.MaxRelevance()
	if maxRelevance < s.cfg.Thresholds.Relevance {
		if err := s.store.MarkStatus(ctx, p.ID, store.StatusSkipped); err != nil {
			s.markFailed(ctx, logger, p.ID, err.Error())
			return store.StatusFailed
		}
		logger.InfoContext(ctx, "paper below relevance threshold",
			logging.Float64("relevance", maxRelevance),
			logging.Float64("threshold", s.cfg.Thresholds.Relevance))
		return store.StatusSkipped
	}
	if err := s.store.MarkStatus(ctx, p.ID, store.StatusStage1Relevant); err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}

	// Acquisition and extraction, with abstract-only degraded fallback.
	text, pdfPath, err := s.acquireText(ctx, logger, p)
	if err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}
	textChars := int64(len(strings.TrimSpace(text)))
	if err := s.store.MarkStatus(ctx, p.ID, store.StatusTextExtracted, store.WithTextChars(textChars)); err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}

	// Stage 2: structured summary.
	summary, raw2, err := s.runStage2(ctx, logger, p, text, stage1.Topics)
	if err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}
	if err := s.store.MarkStatus(ctx, p.ID, store.StatusStage2OK, store.WithStage2Payload(raw2)); err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}

	// Delivery.
	subject := mailer.Subject(p.ID, p.Title)
	body := mailer.FormatBody(summary, pdfPath, s.cfg.Email.IncludeJSON)
	if err := s.sender.Send(ctx, subject, body); err != nil {
		s.markFailed(ctx, logger, p.ID, "Email: "+err.Error())
		return store.StatusFailed
	}
	if err := s.store.MarkStatus(ctx, p.ID, store.StatusEmailed); err != nil {
		s.markFailed(ctx, logger, p.ID, err.Error())
		return store.StatusFailed
	}
	logger.InfoContext(ctx, "paper emailed", logging.String(logging.FieldStatus, string(store.StatusEmailed)))
	return store.StatusEmailed
}

// runStage1 calls the model for relevance classification with the
// repair-once policy: one initial call, and on a parse failure exactly one
// repair call before giving up.
func (s *Sequencer) runStage1(ctx context.Context, logger *slog.Logger, p paper.Paper) (classify.Result, string, error) {
	logger.InfoContext(ctx, "stage started", logging.String(logging.FieldStage, "stage1"))

	prompt := classify.BuildPrompt(s.topics, p)
	raw, err := s.model.CompleteJSON(ctx, classify.SystemPrompt, prompt)
	if err != nil {
		return classify.Result{}, "", fmt.Errorf("Stage1 model: %w", err)
	}
	result, parseErr := classify.Parse(raw, p.ID)
	if parseErr == nil {
		return result, raw, nil
	}

	logger.WarnContext(ctx, "stage1 parse failed, attempting repair",
		logging.String(logging.FieldStage, "stage1"),
		logging.Error(parseErr))
	repaired, err := s.model.CompleteJSON(ctx, classify.SystemPrompt,
		classify.RepairPreamble+truncateForRepair(raw, stage1RepairContextLimit))
	if err != nil {
		return classify.Result{}, "", fmt.Errorf("Stage1 repair: %w", err)
	}
	result, parseErr = classify.Parse(repaired, p.ID)
	if parseErr != nil {
		return classify.Result{}, "", fmt.Errorf("Stage1 parse: %w", parseErr)
	}
	return result, repaired, nil
}

// acquireText resolves the working text for stage 2. The full-text path is
// download + extraction; any failure along it degrades to the abstract,
// which must clear its own length floor or the paper fails.
func (s *Sequencer) acquireText(ctx context.Context, logger *slog.Logger, p paper.Paper) (string, string, error) {
	degradedReason := ""
	pdfPath := ""

	if strings.TrimSpace(p.PDFURL) == "" {
		degradedReason = "no pdf url"
	} else {
		pdfPath = filepath.Join(s.cfg.Storage.PDFDir, artifactName(p.ID)+".pdf")
		if err := s.downloader.Download(ctx, p.PDFURL, pdfPath); err != nil {
			logger.WarnContext(ctx, "pdf download failed, degrading to abstract",
				logging.String(logging.FieldStage, "download"),
				logging.Error(err))
			degradedReason = "download failed: " + err.Error()
			pdfPath = ""
		} else {
			if err := s.store.MarkStatus(ctx, p.ID, store.StatusPDFDownloaded, store.WithPDFPath(pdfPath)); err != nil {
				return "", "", err
			}
		}
	}

	if degradedReason == "" {
		text, err := s.extractor.Extract(pdfPath)
		if err != nil {
			logger.WarnContext(ctx, "text extraction failed, degrading to abstract",
				logging.String(logging.FieldStage, "extract"),
				logging.Error(err))
			degradedReason = "extraction failed: " + err.Error()
		} else if chars := len(strings.TrimSpace(text)); chars < s.cfg.Thresholds.MinTextChars {
			logger.WarnContext(ctx, "extracted text below floor, degrading to abstract",
				logging.String(logging.FieldStage, "extract"),
				logging.Int("chars", chars))
			degradedReason = fmt.Sprintf("extracted text too short (%d chars)", chars)
		} else {
			s.saveText(ctx, logger, p.ID, text)
			return text, pdfPath, nil
		}
	}

	abstract := strings.TrimSpace(p.Abstract)
	if len(abstract) < s.cfg.Thresholds.MinAbstractChars {
		return "", "", fmt.Errorf("PDF: no usable text (%s; abstract %d chars below floor %d)",
			degradedReason, len(abstract), s.cfg.Thresholds.MinAbstractChars)
	}
	logger.InfoContext(ctx, "proceeding in degraded abstract mode",
		logging.String("reason", degradedReason),
		logging.Int("abstract_chars", len(abstract)))
	s.saveText(ctx, logger, p.ID, abstract)
	return abstract, pdfPath, nil
}

// runStage2 mirrors runStage1's repair-once policy for the summary call.
func (s *Sequencer) runStage2(ctx context.Context, logger *slog.Logger, p paper.Paper, text string, stage1Topics []classify.TopicScore) (summarize.Summary, string, error) {
	logger.InfoContext(ctx, "stage started", logging.String(logging.FieldStage, "stage2"))

	prompt := summarize.BuildPrompt(p, text, stage1Topics)
	raw, err := s.model.CompleteJSON(ctx, summarize.SystemPrompt, prompt)
	if err != nil {
		return summarize.Summary{}, "", fmt.Errorf("Stage2 model: %w", err)
	}
	summary, parseErr := summarize.Parse(raw, p.ID)
	if parseErr == nil {
		return summary, raw, nil
	}

	logger.WarnContext(ctx, "stage2 parse failed, attempting repair",
		logging.String(logging.FieldStage, "stage2"),
		logging.Error(parseErr))
	repaired, err := s.model.CompleteJSON(ctx, summarize.SystemPrompt,
		summarize.RepairPreamble+truncateForRepair(raw, stage2RepairContextLimit))
	if err != nil {
		return summarize.Summary{}, "", fmt.Errorf("Stage2 repair: %w", err)
	}
	summary, parseErr = summarize.Parse(repaired, p.ID)
	if parseErr != nil {
		return summarize.Summary{}, "", fmt.Errorf("Stage2 parse: %w", parseErr)
	}
	return summary, repaired, nil
}

func (s *Sequencer) markFailed(ctx context.Context, logger *slog.Logger, paperID, message string) {
	logger.ErrorContext(ctx, "paper failed",
		logging.String(logging.FieldStatus, string(store.StatusFailed)),
		logging.String(logging.FieldErrorHint, message))
	if err := s.store.MarkStatus(ctx, paperID, store.StatusFailed, store.WithErrorMessage(message)); err != nil {
		logger.ErrorContext(ctx, "recording failure status failed", logging.Error(err))
	}
}

// saveText writes the working text beside the PDFs when configured. Failing
// to save is logged but never fails the paper.
func (s *Sequencer) saveText(ctx context.Context, logger *slog.Logger, paperID, text string) {
	if !s.cfg.Storage.SaveText {
		return
	}
	path := filepath.Join(s.cfg.Storage.TextDir, artifactName(paperID)+".txt")
	if err := os.MkdirAll(s.cfg.Storage.TextDir, 0o755); err != nil {
		logger.WarnContext(ctx, "create text dir failed", logging.Error(err))
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		logger.WarnContext(ctx, "save text failed", logging.Error(err))
	}
}

// artifactName makes a paper id safe to use as a file name. Semantic
// Scholar ids carry a colon prefix.
func artifactName(paperID string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return replacer.Replace(paperID)
}

func truncateForRepair(raw string, limit int) string {
	if len(raw) <= limit {
		return raw
	}
	return raw[:limit]
}
