//go:build e2e

// E2E tests require the full review generation stack running:
// 1. docker compose -f docker-compose.test.yml up -d --wait
// 2. Start server and worker pointed at the mock external APIs:
//    REVIEWGEN_OPENALEX_BASE_URL=<mock> REVIEWGEN_LLM_OPENAI_BASE_URL=<mock> go run ./cmd/server &
//    REVIEWGEN_OPENALEX_BASE_URL=<mock> REVIEWGEN_LLM_OPENAI_BASE_URL=<mock> go run ./cmd/worker &
// 3. Run: go test -tags e2e -v ./tests/e2e/...

package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var (
	apiBaseURL   string
	mockOpenAlex *httptest.Server
	mockLLM      *httptest.Server
)

func TestMain(m *testing.M) {
	apiBaseURL = os.Getenv("REVIEWGEN_API_URL")
	if apiBaseURL == "" {
		apiBaseURL = "http://localhost:8080"
	}

	// Mock OpenAlex: one open-access work per search.
	mockOpenAlex = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"meta": {"count": 1, "page": 1, "per_page": 25},
			"results": [{
				"id": "https://openalex.org/W2741809807",
				"doi": "https://doi.org/10.1234/mock-paper",
				"title": "Mock Paper for E2E Testing",
				"display_name": "Mock Paper for E2E Testing",
				"publication_year": 2024,
				"cited_by_count": 10,
				"authorships": [{"author": {"id": "https://openalex.org/A1", "display_name": "Test Author"}}],
				"open_access": {"is_oa": true, "oa_url": "` + mockPDFURL() + `"},
				"best_oa_location": {"pdf_url": "` + mockPDFURL() + `"}
			}]
		}`))
	}))
	defer mockOpenAlex.Close()

	// Mock OpenAI-compatible completion endpoint: a summary long enough to
	// clear the usable-summary threshold.
	mockLLM = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		summary := strings.Repeat("The paper reports substantive findings on the mock topic. ", 8)
		fmt.Fprintf(w, `{"choices": [{"message": {"content": %q}}]}`, summary)
	}))
	defer mockLLM.Close()

	fmt.Printf("Mock OpenAlex: %s\n", mockOpenAlex.URL)
	fmt.Printf("Mock LLM: %s\n", mockLLM.URL)

	os.Exit(m.Run())
}

// mockPDFURL is resolved lazily because the PDF server starts with the first
// test that needs it.
func mockPDFURL() string {
	if url := os.Getenv("REVIEWGEN_E2E_PDF_URL"); url != "" {
		return url
	}
	return "https://example.org/mock-paper.pdf"
}
