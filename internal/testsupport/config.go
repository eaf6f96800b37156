package testsupport

import (
	"path/filepath"
	"testing"

	"paperboy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(base, "state", "papers.db")
	cfg.Storage.PDFDir = filepath.Join(base, "pdfs")
	cfg.Storage.TextDir = filepath.Join(base, "texts")
	cfg.Storage.LogDir = filepath.Join(base, "logs")
	cfg.Storage.TopicsPath = filepath.Join(base, "topics.yaml")
	cfg.LLM.APIKey = "test"
	cfg.LLM.Model = "test/model"
	cfg.Email.SMTPHost = "smtp.test"
	cfg.Email.FromAddr = "digest@test"
	cfg.Email.ToAddr = "reader@test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithRelevanceThreshold overrides the relevance gate on the test config.
func WithRelevanceThreshold(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Thresholds.Relevance = threshold
	}
}

// WithRetryFailed enables failed-paper retry on the test config.
func WithRetryFailed() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.RetryFailed = true
	}
}
