package topics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperboy/internal/topics"
)

func TestParseValidTopics(t *testing.T) {
	data := []byte(`topics:
  - id: llm-eval
    name: LLM Evaluation
    description: Benchmarks and metrics.
    keywords: [benchmark, metric]
  - id: retrieval
`)
	loaded, err := topics.Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(loaded))
	}
	if loaded[0].ID != "llm-eval" || loaded[0].Name != "LLM Evaluation" {
		t.Fatalf("unexpected first topic: %+v", loaded[0])
	}
	if loaded[1].Name != "retrieval" {
		t.Fatalf("expected name to default to id, got %q", loaded[1].Name)
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	data := []byte("topics:\n  - id: a\n  - id: a\n")
	if _, err := topics.Parse(data); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestParseRejectsEmptyID(t *testing.T) {
	data := []byte("topics:\n  - id: \"  \"\n")
	if _, err := topics.Parse(data); err == nil || !strings.Contains(err.Error(), "empty id") {
		t.Fatalf("expected empty id error, got %v", err)
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	if _, err := topics.Parse([]byte("topics: []\n")); err == nil {
		t.Fatal("expected error for empty topic list")
	}
}

func TestLoadAndCreateSampleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := topics.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	loaded, err := topics.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) == 0 {
		t.Fatal("expected sample topics to be non-empty")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sample file on disk: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := topics.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing topics file")
	}
}
