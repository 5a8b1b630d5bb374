package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/review-generation-service/internal/config"
	"github.com/helixir/review-generation-service/internal/domain"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default requests per second. The OpenAlex
	// polite pool (with a mailto) allows up to 10 req/s.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default retry budget for transient failures.
	DefaultMaxRetries = 3

	// maxPerPage is the OpenAlex API page size limit.
	maxPerPage = 200

	// doiPrefix is the URL prefix OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// workIDPrefix is the URL prefix for OpenAlex work IDs.
	workIDPrefix = "https://openalex.org/"
)

// Client queries the OpenAlex works API with rate limiting and bounded
// retries. Safe for concurrent use.
type Client struct {
	cfg         config.OpenAlexConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	userAgent   string
}

// New creates an OpenAlex client from configuration, applying defaults for
// unset fields.
func New(cfg config.OpenAlexConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	userAgent := "ReviewGenerationService/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, int(cfg.RateLimit)),
		userAgent:   userAgent,
	}
}

// Search queries OpenAlex for open-access works matching the topic, most
// cited first, and returns at most limit papers. Returns
// domain.ErrNoResults when the query matches nothing.
func (c *Client) Search(ctx context.Context, topic string, limit int) ([]*domain.Paper, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, domain.NewValidationError("topic", "topic is required")
	}
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be positive")
	}

	searchURL, err := c.buildSearchURL(topic, limit)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var searchResp SearchResponse
	if err := c.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		paper := workToPaper(&searchResp.Results[i])
		if paper == nil {
			continue
		}
		papers = append(papers, paper)
		if len(papers) >= limit {
			break
		}
	}

	if len(papers) == 0 {
		return nil, fmt.Errorf("topic %q: %w", topic, domain.ErrNoResults)
	}

	return papers, nil
}

// getJSON executes a rate-limited GET with retries on transient failures and
// decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			lastErr = domain.NewExternalAPIError("OpenAlex", 0, "request failed", err)
			if err := c.waitForRetry(ctx, attempt, nil); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			// Limit body to 10MB to bound memory on a misbehaving response.
			err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out)
			closeBody(resp)
			if err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
		retryAfter := resp.Header.Get("Retry-After")
		closeBody(resp)

		if !apiErr.IsTransient() {
			return apiErr
		}

		lastErr = apiErr
		if err := c.waitForRetry(ctx, attempt, parseRetryAfter(retryAfter)); err != nil {
			return err
		}
	}

	return fmt.Errorf("search retries exhausted: %w", lastErr)
}

// waitForRetry sleeps before the next attempt, preferring the server-provided
// delay over linear backoff, and respects context cancellation.
func (c *Client) waitForRetry(ctx context.Context, attempt int, retryAfter *time.Duration) error {
	if attempt >= c.cfg.MaxRetries {
		return nil
	}

	delay := time.Duration(attempt+1) * time.Second
	if retryAfter != nil && *retryAfter > 0 {
		delay = *retryAfter
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

// buildSearchURL constructs the /works search URL for a topic.
func (c *Client) buildSearchURL(topic string, limit int) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	perPage := limit
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	query := url.Values{}
	query.Set("search", topic)
	query.Set("filter", "is_oa:true")
	query.Set("sort", "cited_by_count:desc")
	query.Set("per_page", strconv.Itoa(perPage))
	if c.cfg.Email != "" {
		query.Set("mailto", c.cfg.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// workToPaper converts an OpenAlex work to a domain Paper. Returns nil for
// works the pipeline cannot use (no ID or no title).
func workToPaper(work *Work) *domain.Paper {
	openAlexID := normalizeWorkID(work.ID)
	if openAlexID == "" {
		return nil
	}

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	if title == "" {
		return nil
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if authorship.Author.DisplayName != "" {
			authors = append(authors, authorship.Author.DisplayName)
		}
	}

	var year *int
	if work.PublicationYear > 0 {
		y := work.PublicationYear
		year = &y
	}

	return &domain.Paper{
		OpenAlexID: openAlexID,
		DOI:        normalizeDOI(work.DOI),
		Title:      title,
		Authors:    authors,
		Year:       year,
		SourceURL:  workIDPrefix + openAlexID,
		PDFURL:     bestPDFURL(work),
	}
}

// bestPDFURL picks the most promising download location for a work.
func bestPDFURL(work *Work) string {
	if work.BestOALocation != nil && work.BestOALocation.PDFURL != "" {
		return work.BestOALocation.PDFURL
	}
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		return work.OpenAccess.OAURL
	}
	if work.PrimaryLocation != nil && work.PrimaryLocation.PDFURL != "" {
		return work.PrimaryLocation.PDFURL
	}
	return ""
}

// normalizeWorkID extracts the short work ID (e.g. "W2741809807") from full
// OpenAlex URLs.
func normalizeWorkID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(id, workIDPrefix))
}

// normalizeDOI strips URL and scheme prefixes from DOIs and lowercases them.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// parseRetryAfter parses a Retry-After header value in seconds or HTTP date
// format. Returns nil when the header is absent or unparseable.
func parseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return &d
		}
	}
	return nil
}

// closeBody drains and closes a response body so the connection can be reused.
func closeBody(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
