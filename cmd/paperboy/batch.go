package main

import (
	"context"
	"fmt"
	"log/slog"

	"paperboy/internal/config"
	"paperboy/internal/fetch"
	"paperboy/internal/llm"
	"paperboy/internal/logging"
	"paperboy/internal/mailer"
	"paperboy/internal/paper"
	"paperboy/internal/pdftext"
	"paperboy/internal/pipeline"
	"paperboy/internal/runlock"
	"paperboy/internal/store"
	"paperboy/internal/topics"
)

// executeBatch runs one end-to-end digest batch under the single-instance
// lock: fetch, merge, and drive every candidate through the pipeline.
func executeBatch(ctx context.Context, cmdCtx *commandContext) (pipeline.RunStats, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return pipeline.RunStats{}, err
	}
	logger, err := cmdCtx.newLogger()
	if err != nil {
		return pipeline.RunStats{}, err
	}

	release, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return pipeline.RunStats{}, err
	}
	defer release()

	topicList, err := topics.Load(cfg.Storage.TopicsPath)
	if err != nil {
		return pipeline.RunStats{}, fmt.Errorf("load topics: %w", err)
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		return pipeline.RunStats{}, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	papers, err := fetchCandidates(ctx, cmdCtx, logger)
	if err != nil {
		return pipeline.RunStats{}, err
	}

	model := newModelClient(cfg)
	downloader := pdftext.NewDownloader(cfg.Workflow.DownloadTimeout, logger)
	extractor := pdftext.NewExtractor(logger)
	sender := mailer.NewSender(cfg.Email, logger)

	sequencer := pipeline.NewSequencer(cfg, st, topicList, model, downloader, extractor, sender, logger)
	return sequencer.Run(ctx, papers)
}

func newModelClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		MaxTokens:      cfg.LLM.MaxTokens,
	})
}

// fetchCandidates queries every enabled source and merges the results. A
// primary source failure aborts the batch before any row is written.
func fetchCandidates(ctx context.Context, cmdCtx *commandContext, logger *slog.Logger) ([]paper.Paper, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}

	sources := []fetch.Source{fetch.NewArxivClient(cfg.Arxiv, logger)}
	if cfg.SemanticScholar.Enabled {
		sources = append(sources, fetch.NewSemanticScholarClient(cfg.SemanticScholar, logger))
	}

	batches := make([][]paper.Paper, 0, len(sources))
	for _, source := range sources {
		batch, err := source.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source.Name(), err)
		}
		logger.InfoContext(ctx, "source fetched",
			logging.String(logging.FieldSource, source.Name()),
			logging.Int("papers", len(batch)))
		batches = append(batches, batch)
	}
	return fetch.Merge(batches...), nil
}
