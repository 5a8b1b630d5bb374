package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-generation-service/internal/config"
	"github.com/helixir/review-generation-service/internal/domain"
)

const sampleSearchResponse = `{
	"meta": {"count": 2, "page": 1, "per_page": 25},
	"results": [
		{
			"id": "https://openalex.org/W2741809807",
			"doi": "https://doi.org/10.7717/peerj.4375",
			"display_name": "The state of OA",
			"publication_year": 2018,
			"cited_by_count": 1200,
			"authorships": [
				{"author": {"id": "https://openalex.org/A1", "display_name": "Heather Piwowar"}},
				{"author": {"id": "https://openalex.org/A2", "display_name": "Jason Priem"}}
			],
			"open_access": {"is_oa": true, "oa_url": "https://peerj.com/articles/4375.pdf"},
			"best_oa_location": {"pdf_url": "https://peerj.com/articles/4375.pdf"}
		},
		{
			"id": "https://openalex.org/W999",
			"display_name": "",
			"title": "",
			"cited_by_count": 10
		}
	]
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(config.OpenAlexConfig{
		BaseURL:    baseURL,
		Email:      "team@example.com",
		Timeout:    5 * time.Second,
		RateLimit:  100,
		MaxRetries: 2,
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("maps works to papers", func(t *testing.T) {
		var gotQuery atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery.Store(r.URL.Query())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleSearchResponse))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "open access", 25)
		require.NoError(t, err)

		// Second work has no title and is dropped.
		require.Len(t, papers, 1)
		paper := papers[0]
		assert.Equal(t, "W2741809807", paper.OpenAlexID)
		assert.Equal(t, "10.7717/peerj.4375", paper.DOI)
		assert.Equal(t, "The state of OA", paper.Title)
		assert.Equal(t, []string{"Heather Piwowar", "Jason Priem"}, paper.Authors)
		require.NotNil(t, paper.Year)
		assert.Equal(t, 2018, *paper.Year)
		assert.Equal(t, "https://openalex.org/W2741809807", paper.SourceURL)
		assert.Equal(t, "https://peerj.com/articles/4375.pdf", paper.PDFURL)

		query := gotQuery.Load().(url.Values)
		assert.Equal(t, "open access", query.Get("search"))
		assert.Equal(t, "is_oa:true", query.Get("filter"))
		assert.Equal(t, "cited_by_count:desc", query.Get("sort"))
		assert.Equal(t, "25", query.Get("per_page"))
		assert.Equal(t, "team@example.com", query.Get("mailto"))
	})

	t.Run("empty result set is ErrNoResults", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"meta": {"count": 0}, "results": []}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		_, err := client.Search(context.Background(), "nonexistent topic", 10)
		assert.ErrorIs(t, err, domain.ErrNoResults)
	})

	t.Run("retries transient errors then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleSearchResponse))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "open access", 10)
		require.NoError(t, err)
		assert.Len(t, papers, 1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("non-transient error is returned immediately", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		_, err := client.Search(context.Background(), "open access", 10)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("exhausted retries surface last error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		_, err := client.Search(context.Background(), "open access", 10)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	})

	t.Run("rejects blank topic", func(t *testing.T) {
		client := newTestClient(t, "https://api.openalex.org")
		_, err := client.Search(context.Background(), "   ", 10)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"full URL", "https://doi.org/10.1234/ABC", "10.1234/abc"},
		{"http URL", "http://doi.org/10.1234/abc", "10.1234/abc"},
		{"doi prefix", "doi:10.1234/abc", "10.1234/abc"},
		{"bare", "10.1234/abc", "10.1234/abc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDOI(tt.input))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Run("seconds", func(t *testing.T) {
		d := parseRetryAfter("5")
		require.NotNil(t, d)
		assert.Equal(t, 5*time.Second, *d)
	})

	t.Run("absent", func(t *testing.T) {
		assert.Nil(t, parseRetryAfter(""))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Nil(t, parseRetryAfter("soon"))
	})
}
