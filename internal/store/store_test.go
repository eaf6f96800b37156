package store_test

import (
	"context"
	"testing"

	"paperboy/internal/paper"
	"paperboy/internal/store"
	"paperboy/internal/testsupport"
)

func TestUpsertMetadataPreservesStatusOnRefetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := paper.Paper{ID: "2401.00001", Title: "First Title", Source: "arxiv"}
	if err := st.UpsertMetadata(ctx, p); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}
	if err := st.MarkStatus(ctx, p.ID, store.StatusEmailed); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}

	p.Title = "Revised Title"
	p.Abstract = "Updated abstract"
	if err := st.UpsertMetadata(ctx, p); err != nil {
		t.Fatalf("second UpsertMetadata: %v", err)
	}

	record, err := st.GetRecord(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record == nil {
		t.Fatal("expected record")
	}
	if record.Status != store.StatusEmailed {
		t.Fatalf("upsert overwrote status: got %q", record.Status)
	}
	if record.Title != "Revised Title" {
		t.Fatalf("expected metadata refresh, got title %q", record.Title)
	}
}

func TestGetStatusAbsentPaper(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	status, found, err := st.GetStatus(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if found || status != "" {
		t.Fatalf("expected absent paper, got %q found=%v", status, found)
	}

	record, err := st.GetRecord(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestProcessedAndInProgressSets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		status     store.Status
		processed  bool
		skipIntake bool
	}{
		{store.StatusNew, false, true},
		{store.StatusStage1OK, false, true},
		{store.StatusStage1Relevant, false, true},
		{store.StatusPDFDownloaded, false, true},
		{store.StatusTextExtracted, false, true},
		{store.StatusStage2OK, true, true},
		{store.StatusSkipped, true, true},
		{store.StatusEmailed, true, true},
		{store.StatusFailed, false, false},
	}
	for i, tc := range cases {
		id := "paper-" + string(tc.status)
		testsupport.SeedPaper(t, st, id, "Paper")
		if err := st.MarkStatus(ctx, id, tc.status); err != nil {
			t.Fatalf("case %d MarkStatus: %v", i, err)
		}
		processed, err := st.IsProcessed(ctx, id)
		if err != nil {
			t.Fatalf("case %d IsProcessed: %v", i, err)
		}
		if processed != tc.processed {
			t.Fatalf("status %q: IsProcessed=%v want %v", tc.status, processed, tc.processed)
		}
		skip, err := st.IsInProgressOrProcessed(ctx, id)
		if err != nil {
			t.Fatalf("case %d IsInProgressOrProcessed: %v", i, err)
		}
		if skip != tc.skipIntake {
			t.Fatalf("status %q: IsInProgressOrProcessed=%v want %v", tc.status, skip, tc.skipIntake)
		}
	}

	skip, err := st.IsInProgressOrProcessed(ctx, "never-seen")
	if err != nil {
		t.Fatalf("IsInProgressOrProcessed absent: %v", err)
	}
	if skip {
		t.Fatal("absent paper must be eligible for intake")
	}
}

func TestMarkStatusPartialUpdatePreservesOtherColumns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPaper(t, st, "2401.00002", "Paper")
	if err := st.MarkStatus(ctx, "2401.00002", store.StatusStage1Relevant,
		store.WithStage1Payload(`{"overall_relevance":0.9}`)); err != nil {
		t.Fatalf("MarkStatus stage1: %v", err)
	}
	if err := st.MarkStatus(ctx, "2401.00002", store.StatusPDFDownloaded,
		store.WithPDFPath("/tmp/2401.00002.pdf")); err != nil {
		t.Fatalf("MarkStatus pdf: %v", err)
	}
	if err := st.MarkStatus(ctx, "2401.00002", store.StatusStage2OK,
		store.WithStage2Payload(`{"problem":"p"}`),
		store.WithTextChars(4321)); err != nil {
		t.Fatalf("MarkStatus stage2: %v", err)
	}

	record, err := st.GetRecord(ctx, "2401.00002")
	if err != nil || record == nil {
		t.Fatalf("GetRecord: %v %v", record, err)
	}
	if record.Status != store.StatusStage2OK {
		t.Fatalf("unexpected status %q", record.Status)
	}
	if record.Stage1JSON != `{"overall_relevance":0.9}` {
		t.Fatalf("stage1 payload lost: %q", record.Stage1JSON)
	}
	if record.Stage2JSON != `{"problem":"p"}` {
		t.Fatalf("stage2 payload missing: %q", record.Stage2JSON)
	}
	if record.PDFPath != "/tmp/2401.00002.pdf" {
		t.Fatalf("pdf path lost: %q", record.PDFPath)
	}
	if record.TextChars != 4321 {
		t.Fatalf("text chars lost: %d", record.TextChars)
	}
}

func TestMarkStatusMissingRowIsNotAnError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.MarkStatus(context.Background(), "ghost", store.StatusFailed,
		store.WithErrorMessage("boom")); err != nil {
		t.Fatalf("expected missing row to be tolerated, got %v", err)
	}
}

func TestMarkStatusRejectsUnknownStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.MarkStatus(context.Background(), "x", store.Status("bogus")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestClearFailedRemovesOnlyFailedPapers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPaper(t, st, "a", "A")
	testsupport.SeedPaper(t, st, "b", "B")
	testsupport.SeedPaper(t, st, "c", "C")
	if err := st.MarkStatus(ctx, "a", store.StatusFailed, store.WithErrorMessage("PDF: timeout")); err != nil {
		t.Fatalf("MarkStatus a: %v", err)
	}
	if err := st.MarkStatus(ctx, "b", store.StatusEmailed); err != nil {
		t.Fatalf("MarkStatus b: %v", err)
	}

	removed, err := st.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed paper, got %d", removed)
	}

	// The cleared paper is unseen again, so the next fetch re-enters it.
	if _, found, err := st.GetStatus(ctx, "a"); err != nil || found {
		t.Fatalf("expected paper a gone, found=%v err=%v", found, err)
	}
	skip, err := st.IsInProgressOrProcessed(ctx, "a")
	if err != nil {
		t.Fatalf("IsInProgressOrProcessed: %v", err)
	}
	if skip {
		t.Fatal("cleared paper must be eligible at intake")
	}

	status, _, err := st.GetStatus(ctx, "b")
	if err != nil {
		t.Fatalf("GetStatus b: %v", err)
	}
	if status != store.StatusEmailed {
		t.Fatalf("emailed paper must not be removed, got %q", status)
	}
}

func TestListByStatusAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPaper(t, st, "a", "A")
	testsupport.SeedPaper(t, st, "b", "B")
	if err := st.MarkStatus(ctx, "b", store.StatusSkipped); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}

	newPapers, err := st.ListByStatus(ctx, store.StatusNew)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(newPapers) != 1 || newPapers[0].ID != "a" {
		t.Fatalf("unexpected new papers: %+v", newPapers)
	}

	all, err := st.ListByStatus(ctx)
	if err != nil {
		t.Fatalf("ListByStatus all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(all))
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[store.StatusNew] != 1 || stats[store.StatusSkipped] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestUpsertRoundTripsAuthorsAndCategories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := paper.Paper{
		ID:         "2401.00003",
		Title:      "Paper",
		Authors:    []string{"Ada Lovelace", "Alan Turing"},
		Categories: []string{"cs.CL", "cs.LG"},
		Published:  "2024-01-02",
		Source:     "arxiv",
	}
	if err := st.UpsertMetadata(ctx, p); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}

	record, err := st.GetRecord(ctx, p.ID)
	if err != nil || record == nil {
		t.Fatalf("GetRecord: %v %v", record, err)
	}
	if len(record.Authors) != 2 || record.Authors[0] != "Ada Lovelace" {
		t.Fatalf("unexpected authors: %v", record.Authors)
	}
	if len(record.Categories) != 2 || record.Categories[1] != "cs.LG" {
		t.Fatalf("unexpected categories: %v", record.Categories)
	}
	if record.Status != store.StatusNew {
		t.Fatalf("expected new status on insert, got %q", record.Status)
	}
}
