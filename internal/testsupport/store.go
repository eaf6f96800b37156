package testsupport

import (
	"context"
	"testing"

	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
	"paperboy/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedPaper upserts a minimal paper for tests using the provided store.
func SeedPaper(t testing.TB, st *store.Store, id, title string) {
	t.Helper()

	p := paper.Paper{
		ID:         id,
		Title:      title,
		Authors:    []string{"Test Author"},
		Categories: []string{"cs.CL"},
		Published:  "2024-01-01",
		Abstract:   "An abstract.",
		PDFURL:     "https://arxiv.org/pdf/" + id + ".pdf",
		Source:     "arxiv",
	}
	if err := st.UpsertMetadata(context.Background(), p); err != nil {
		t.Fatalf("store.UpsertMetadata: %v", err)
	}
}
