package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"paperboy/internal/config"
	"paperboy/internal/logging"
)

const arxivFeedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v2</id>
    <title>Fresh Paper</title>
    <summary>An abstract about evaluation.</summary>
    <published>%s</published>
    <updated>%s</updated>
    <author><name>Ada Lovelace</name></author>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v2"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2312.99999v1</id>
    <title>Stale Paper</title>
    <summary>Old news.</summary>
    <published>%s</published>
    <updated>%s</updated>
    <author><name>Alan Turing</name></author>
    <category term="cs.CL"/>
  </entry>
</feed>`

func TestArxivFetchFiltersWindowAndStripsVersion(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-6 * time.Hour).Format(time.RFC3339)
	stale := now.Add(-72 * time.Hour).Format(time.RFC3339)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search_query"); got != "cat:cs.CL" {
			t.Fatalf("unexpected search_query %q", got)
		}
		fmt.Fprintf(w, arxivFeedTemplate, fresh, fresh, stale, stale)
	}))
	defer server.Close()

	client := NewArxivClient(
		config.Arxiv{Categories: []string{"cs.CL"}, MaxResultsPerCategory: 50, DaysBack: 1, RequestTimeout: 5},
		logging.NewNop(),
		WithArxivBaseURL(server.URL),
		WithArxivClock(func() time.Time { return now }),
	)

	papers, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected stale paper filtered, got %d papers", len(papers))
	}
	p := papers[0]
	if p.ID != "2401.00001" {
		t.Fatalf("version suffix not stripped: %q", p.ID)
	}
	if p.Title != "Fresh Paper" {
		t.Fatalf("unexpected title %q", p.Title)
	}
	if len(p.Categories) != 2 || p.Categories[1] != "cs.LG" {
		t.Fatalf("unexpected categories %v", p.Categories)
	}
	if p.PDFURL != "http://arxiv.org/pdf/2401.00001v2" {
		t.Fatalf("unexpected pdf url %q", p.PDFURL)
	}
	if p.Source != "arxiv" {
		t.Fatalf("unexpected source %q", p.Source)
	}
}

func TestArxivFetchDeduplicatesAcrossCategories(t *testing.T) {
	now := time.Now().UTC()
	published := now.Add(-1 * time.Hour).Format(time.RFC3339)
	feeds := map[string]string{
		"cat:cs.CL": `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><entry>
            <id>http://arxiv.org/abs/2401.00007</id><title>Shared</title><summary>s</summary>
            <published>` + published + `</published><category term="cs.CL"/></entry></feed>`,
		"cat:cs.LG": `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><entry>
            <id>http://arxiv.org/abs/2401.00007</id><title>Shared</title><summary>s</summary>
            <published>` + published + `</published><category term="cs.LG"/></entry></feed>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feeds[r.URL.Query().Get("search_query")])
	}))
	defer server.Close()

	client := NewArxivClient(
		config.Arxiv{Categories: []string{"cs.CL", "cs.LG"}, MaxResultsPerCategory: 10, DaysBack: 1},
		logging.NewNop(),
		WithArxivBaseURL(server.URL),
	)
	papers, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected deduplicated paper, got %d", len(papers))
	}
	if len(papers[0].Categories) != 2 {
		t.Fatalf("expected merged categories, got %v", papers[0].Categories)
	}
	if papers[0].PDFURL != "https://arxiv.org/pdf/2401.00007.pdf" {
		t.Fatalf("expected pdf url fallback, got %q", papers[0].PDFURL)
	}
}

func TestArxivFetchRetriesOnServerError(t *testing.T) {
	now := time.Now().UTC()
	published := now.Add(-1 * time.Hour).Format(time.RFC3339)
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><entry>
            <id>http://arxiv.org/abs/2401.00008</id><title>T</title><summary>s</summary>
            <published>`+published+`</published></entry></feed>`)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewArxivClient(
		config.Arxiv{Categories: []string{"cs.CL"}, MaxResultsPerCategory: 10, DaysBack: 1},
		logging.NewNop(),
		WithArxivBaseURL(server.URL),
		WithArxivSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	papers, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper after retry, got %d", len(papers))
	}
	if len(slept) != 1 {
		t.Fatalf("expected one retry sleep, got %v", slept)
	}
}

func TestExtractArxivID(t *testing.T) {
	cases := map[string]string{
		"http://arxiv.org/abs/2301.07041v1":   "2301.07041",
		"http://arxiv.org/abs/2301.07041":     "2301.07041",
		"https://arxiv.org/abs/2401.00001v12": "2401.00001",
		"http://example.com/nothing":          "",
	}
	for input, want := range cases {
		if got := extractArxivID(input); got != want {
			t.Fatalf("extractArxivID(%q) = %q, want %q", input, got, want)
		}
	}
}
