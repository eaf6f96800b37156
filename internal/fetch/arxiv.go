package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
)

const (
	arxivDefaultBaseURL = "https://export.arxiv.org/api/query"
	arxivPDFBase        = "https://arxiv.org/pdf/"

	arxivRetryAttempts  = 3
	arxivRetryBaseDelay = 2 * time.Second
)

// ArxivClient fetches recent submissions per category from the arXiv API.
type ArxivClient struct {
	cfg        config.Arxiv
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	sleeper    func(time.Duration)
}

// ArxivOption customizes the client.
type ArxivOption func(*ArxivClient)

// WithArxivBaseURL overrides the API endpoint (useful for tests).
func WithArxivBaseURL(baseURL string) ArxivOption {
	return func(c *ArxivClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithArxivHTTPClient overrides the default HTTP client.
func WithArxivHTTPClient(client *http.Client) ArxivOption {
	return func(c *ArxivClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithArxivClock overrides the cutoff clock (useful for tests).
func WithArxivClock(now func() time.Time) ArxivOption {
	return func(c *ArxivClient) {
		if now != nil {
			c.now = now
		}
	}
}

// WithArxivSleeper overrides how retry sleeps are performed (useful for tests).
func WithArxivSleeper(sleeper func(time.Duration)) ArxivOption {
	return func(c *ArxivClient) {
		c.sleeper = sleeper
	}
}

// NewArxivClient constructs an arXiv client from configuration.
func NewArxivClient(cfg config.Arxiv, logger *slog.Logger, opts ...ArxivOption) *ArxivClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := 30 * time.Second
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &ArxivClient{
		cfg:        cfg,
		baseURL:    arxivDefaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(logging.String(logging.FieldComponent, "fetch.arxiv")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name returns the source identifier.
func (c *ArxivClient) Name() string { return "arxiv" }

// Fetch retrieves recent submissions for each configured category, filtered
// to the publication window, deduplicated across categories.
func (c *ArxivClient) Fetch(ctx context.Context) ([]paper.Paper, error) {
	cutoff := c.now().UTC().Add(-time.Duration(c.cfg.DaysBack) * 24 * time.Hour)
	seen := make(map[string]int)
	var papers []paper.Paper

	for _, category := range c.cfg.Categories {
		entries, err := c.fetchCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("fetch category %s: %w", category, err)
		}
		added := 0
		for _, entry := range entries {
			id := extractArxivID(entry.ID)
			if id == "" {
				continue
			}
			if at, dup := seen[id]; dup {
				papers[at].MergeCategories(entry.categoryTerms())
				continue
			}
			published, ok := parseEntryTime(entry.Published)
			if ok && published.Before(cutoff) {
				continue
			}
			seen[id] = len(papers)
			papers = append(papers, entry.toPaper(id))
			added++
		}
		c.logger.InfoContext(ctx, "fetched category",
			logging.String("category", category),
			logging.Int("papers", added))
	}

	c.logger.InfoContext(ctx, "arxiv fetch complete", logging.Int("unique_papers", len(papers)))
	return papers, nil
}

func (c *ArxivClient) fetchCategory(ctx context.Context, category string) ([]arxivEntry, error) {
	endpoint := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=submittedDate&sortOrder=descending",
		c.baseURL, url.QueryEscape("cat:"+category), c.cfg.MaxResultsPerCategory)

	var lastErr error
	for attempt := 1; attempt <= arxivRetryAttempts; attempt++ {
		entries, err := c.fetchFeedOnce(ctx, endpoint)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if attempt == arxivRetryAttempts || ctx.Err() != nil {
			break
		}
		delay := arxivRetryBaseDelay << (attempt - 1)
		c.logger.WarnContext(ctx, "arxiv fetch failed, retrying",
			logging.String("category", category),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *ArxivClient) fetchFeedOnce(ctx context.Context, endpoint string) ([]arxivEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned http %d", resp.StatusCode)
	}
	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	return feed.Entries, nil
}

func (c *ArxivClient) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		c.sleeper(delay)
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

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Updated    string          `xml:"updated"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
	Links      []arxivLink     `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
}

func (e arxivEntry) categoryTerms() []string {
	terms := make([]string, 0, len(e.Categories))
	for _, category := range e.Categories {
		if term := strings.TrimSpace(category.Term); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func (e arxivEntry) pdfURL(id string) string {
	for _, link := range e.Links {
		if strings.EqualFold(link.Title, "pdf") && link.Href != "" {
			return link.Href
		}
	}
	return arxivPDFBase + id + ".pdf"
}

func (e arxivEntry) toPaper(id string) paper.Paper {
	authors := make([]string, 0, len(e.Authors))
	for _, author := range e.Authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			authors = append(authors, name)
		}
	}
	return paper.Paper{
		ID:         id,
		Title:      strings.TrimSpace(e.Title),
		Authors:    authors,
		Categories: e.categoryTerms(),
		Published:  strings.TrimSpace(e.Published),
		Updated:    strings.TrimSpace(e.Updated),
		Abstract:   strings.TrimSpace(e.Summary),
		PDFURL:     e.pdfURL(id),
		Source:     "arxiv",
	}
}

func parseEntryTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// extractArxivID pulls the bare arXiv id from an entry's <id> URL, stripping
// any version suffix ("http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
