// Package pipeline drives each paper through the digest stage sequence.
//
// The sequencer owns the per-paper state machine. Every stage completion is
// persisted before the next stage begins, so a crash mid-batch resumes
// cleanly: finished papers are skipped at intake, and a paper stuck in an
// in-progress status is left alone rather than re-entered. One paper's
// failure never aborts the batch.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
	"paperboy/internal/store"
	"paperboy/internal/topics"
)

// ModelClient is the LLM collaborator for both model stages.
type ModelClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Downloader fetches a paper's PDF to a local path.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Extractor converts a downloaded PDF into plain text.
type Extractor interface {
	Extract(pdfPath string) (string, error)
}

// Sender delivers one rendered digest email.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// RunStats summarizes one batch run.
type RunStats struct {
	Candidates    int
	SkippedIntake int
	Emailed       int
	SkippedByGate int
	Failed        int
	RetriedFailed int
}

// Sequencer processes a batch of fetched papers.
type Sequencer struct {
	cfg        *config.Config
	store      *store.Store
	topics     []topics.Topic
	model      ModelClient
	downloader Downloader
	extractor  Extractor
	sender     Sender
	logger     *slog.Logger
}

// NewSequencer wires the sequencer with its collaborators.
func NewSequencer(
	cfg *config.Config,
	st *store.Store,
	topicList []topics.Topic,
	model ModelClient,
	downloader Downloader,
	extractor Extractor,
	sender Sender,
	logger *slog.Logger,
) *Sequencer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sequencer{
		cfg:        cfg,
		store:      st,
		topics:     topicList,
		model:      model,
		downloader: downloader,
		extractor:  extractor,
		sender:     sender,
		logger:     logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// Run processes every candidate paper in order. Papers already processed or
// mid-pipeline are skipped at intake; failed papers re-enter only when the
// retry policy allows it. Everything else is upserted and driven through the
// stage sequence.
func (s *Sequencer) Run(ctx context.Context, papers []paper.Paper) (RunStats, error) {
	stats := RunStats{Candidates: len(papers)}

	for _, p := range papers {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		status, found, err := s.store.GetStatus(ctx, p.ID)
		if err != nil {
			return stats, err
		}
		if found && (status.IsProcessed() || status.IsInProgress()) {
			stats.SkippedIntake++
			s.logger.InfoContext(ctx, "skip paper",
				logging.String(logging.FieldPaperID, p.ID),
				logging.String("reason", "already processed or in progress"))
			continue
		}
		if found && status == store.StatusFailed {
			if !s.cfg.Workflow.RetryFailed {
				stats.SkippedIntake++
				s.logger.InfoContext(ctx, "skip paper",
					logging.String(logging.FieldPaperID, p.ID),
					logging.String("reason", "previously failed; retry disabled"))
				continue
			}
			stats.RetriedFailed++
			s.logger.InfoContext(ctx, "retrying failed paper",
				logging.String(logging.FieldPaperID, p.ID))
		}

		if err := s.store.UpsertMetadata(ctx, p); err != nil {
			return stats, err
		}

		correlationID := uuid.NewString()
		logger := s.logger.With(
			logging.String(logging.FieldPaperID, p.ID),
			logging.String(logging.FieldCorrelationID, correlationID),
		)

		outcome := s.processPaper(ctx, logger, p)
		switch outcome {
		case store.StatusEmailed:
			stats.Emailed++
		case store.StatusSkipped:
			stats.SkippedByGate++
		default:
			stats.Failed++
		}
	}

	s.logger.InfoContext(ctx, "batch finished",
		logging.Int("candidates", stats.Candidates),
		logging.Int("skipped_intake", stats.SkippedIntake),
		logging.Int("emailed", stats.Emailed),
		logging.Int("skipped_by_gate", stats.SkippedByGate),
		logging.Int("failed", stats.Failed),
		logging.Int("retried_failed", stats.RetriedFailed))
	return stats, nil
}
