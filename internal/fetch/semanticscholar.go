package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
)

const (
	semanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1/paper/search"
	semanticScholarFields  = "paperId,title,abstract,year,authors,url,openAccessPdf"

	// IDPrefixSemanticScholar namespaces Semantic Scholar ids so they never
	// collide with bare arXiv ids in the store.
	IDPrefixSemanticScholar = "semantic_scholar:"

	// Unauthenticated clients get roughly 100 requests per 5 minutes, so
	// queries are paced well below that.
	semanticScholarQueryInterval = 8 * time.Second

	semanticScholarRetries429   = 3
	semanticScholarBackoffBase  = 60 * time.Second
	semanticScholarMaxQueryHits = 100
)

// SemanticScholarClient fetches papers by keyword search.
type SemanticScholarClient struct {
	cfg        config.SemanticScholar
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	sleeper    func(time.Duration)
}

// SemanticScholarOption customizes the client.
type SemanticScholarOption func(*SemanticScholarClient)

// WithSemanticScholarBaseURL overrides the API endpoint (useful for tests).
func WithSemanticScholarBaseURL(baseURL string) SemanticScholarOption {
	return func(c *SemanticScholarClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithSemanticScholarHTTPClient overrides the default HTTP client.
func WithSemanticScholarHTTPClient(client *http.Client) SemanticScholarOption {
	return func(c *SemanticScholarClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSemanticScholarLimiter overrides the query pacing limiter.
func WithSemanticScholarLimiter(limiter *rate.Limiter) SemanticScholarOption {
	return func(c *SemanticScholarClient) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithSemanticScholarSleeper overrides 429 backoff sleeps (useful for tests).
func WithSemanticScholarSleeper(sleeper func(time.Duration)) SemanticScholarOption {
	return func(c *SemanticScholarClient) {
		c.sleeper = sleeper
	}
}

// NewSemanticScholarClient constructs a Semantic Scholar client from
// configuration.
func NewSemanticScholarClient(cfg config.SemanticScholar, logger *slog.Logger, opts ...SemanticScholarOption) *SemanticScholarClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := 30 * time.Second
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &SemanticScholarClient{
		cfg:        cfg,
		baseURL:    semanticScholarBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(logging.String(logging.FieldComponent, "fetch.semantic_scholar")),
		limiter:    rate.NewLimiter(rate.Every(semanticScholarQueryInterval), 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name returns the source identifier.
func (c *SemanticScholarClient) Name() string { return "semantic_scholar" }

// Fetch searches for each configured query and returns the deduplicated
// results. Query failures are logged and skipped so one bad query does not
// lose the rest of the batch.
func (c *SemanticScholarClient) Fetch(ctx context.Context) ([]paper.Paper, error) {
	seen := make(map[string]struct{})
	var papers []paper.Paper

	for _, query := range c.cfg.Queries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		items, err := c.searchQuery(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnContext(ctx, "semantic scholar query failed",
				logging.String("query", query),
				logging.Error(err))
			continue
		}
		for _, item := range items {
			p, ok := item.toPaper()
			if !ok {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			papers = append(papers, p)
		}
		c.logger.InfoContext(ctx, "semantic scholar query complete",
			logging.String("query", query),
			logging.Int("papers", len(items)))
	}

	c.logger.InfoContext(ctx, "semantic scholar fetch complete", logging.Int("unique_papers", len(papers)))
	return papers, nil
}

func (c *SemanticScholarClient) searchQuery(ctx context.Context, query string) ([]semanticScholarItem, error) {
	limit := c.cfg.Limit
	if limit > semanticScholarMaxQueryHits {
		limit = semanticScholarMaxQueryHits
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", semanticScholarFields)
	endpoint := c.baseURL + "?" + params.Encode()

	for attempt := 0; attempt <= semanticScholarRetries429; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("semantic scholar request: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if attempt == semanticScholarRetries429 {
				return nil, fmt.Errorf("semantic scholar rate limited after %d attempts", attempt+1)
			}
			wait := semanticScholarBackoffBase << attempt
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, convErr := strconv.Atoi(strings.TrimSpace(retryAfter)); convErr == nil {
					if after := time.Duration(seconds) * time.Second; after > wait {
						wait = after
					}
				}
			}
			c.logger.WarnContext(ctx, "semantic scholar rate limited, retrying",
				logging.String("query", query),
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", wait))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		items, err := decodeSemanticScholarResponse(resp)
		if err != nil {
			return nil, err
		}
		return items, nil
	}
	return nil, fmt.Errorf("semantic scholar query exhausted retries")
}

func decodeSemanticScholarResponse(resp *http.Response) ([]semanticScholarItem, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("semantic scholar returned http %d", resp.StatusCode)
	}
	var payload struct {
		Data []semanticScholarItem `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse semantic scholar response: %w", err)
	}
	return payload.Data, nil
}

func (c *SemanticScholarClient) sleep(ctx context.Context, delay time.Duration) error {
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

type semanticScholarItem struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     *int   `json:"year"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (item semanticScholarItem) toPaper() (paper.Paper, bool) {
	if item.PaperID == "" {
		return paper.Paper{}, false
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return paper.Paper{}, false
	}
	authors := make([]string, 0, len(item.Authors))
	for _, author := range item.Authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			authors = append(authors, name)
		}
	}
	published := ""
	if item.Year != nil {
		published = fmt.Sprintf("%d-01-01", *item.Year)
	}
	abstract := strings.TrimSpace(item.Abstract)
	if abstract == "" {
		abstract = "(No abstract)"
	}
	pdfURL := ""
	if item.OpenAccessPDF != nil {
		pdfURL = strings.TrimSpace(item.OpenAccessPDF.URL)
	}
	return paper.Paper{
		ID:        IDPrefixSemanticScholar + item.PaperID,
		Title:     title,
		Authors:   authors,
		Published: published,
		Abstract:  abstract,
		PDFURL:    pdfURL,
		Source:    "semantic_scholar",
	}, true
}
