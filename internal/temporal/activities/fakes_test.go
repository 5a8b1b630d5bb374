package activities

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/llm"
	"github.com/helixir/review-generation-service/internal/pdf"
	"github.com/helixir/review-generation-service/internal/repository"
)

// fakePaperRepo is an in-memory PaperRepository with fill-once semantics
// matching the Postgres implementation.
type fakePaperRepo struct {
	mu       sync.Mutex
	papers   map[uuid.UUID]*domain.Paper
	attached map[uuid.UUID][]uuid.UUID

	getErr error
	setErr error
}

func newFakePaperRepo(papers ...*domain.Paper) *fakePaperRepo {
	r := &fakePaperRepo{
		papers:   make(map[uuid.UUID]*domain.Paper),
		attached: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, p := range papers {
		r.papers[p.ID] = p
	}
	return r
}

func (r *fakePaperRepo) GetOrCreate(_ context.Context, paper *domain.Paper) (*domain.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.papers {
		if existing.OpenAlexID == paper.OpenAlexID {
			return existing, nil
		}
	}
	stored := *paper
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.papers[stored.ID] = &stored
	return &stored, nil
}

func (r *fakePaperRepo) Get(_ context.Context, id uuid.UUID) (*domain.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.papers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePaperRepo) AttachToJob(_ context.Context, jobID, paperID uuid.UUID, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.attached[jobID] {
		if id == paperID {
			return nil
		}
	}
	r.attached[jobID] = append(r.attached[jobID], paperID)
	return nil
}

func (r *fakePaperRepo) ListByJob(_ context.Context, jobID uuid.UUID) ([]*domain.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	out := make([]*domain.Paper, 0, len(r.attached[jobID]))
	for _, id := range r.attached[jobID] {
		copied := *r.papers[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakePaperRepo) SetPDFPath(_ context.Context, id uuid.UUID, path string) error {
	return r.fill(id, func(p *domain.Paper) {
		if p.PDFPath == "" {
			p.PDFPath = path
		}
	})
}

func (r *fakePaperRepo) SetExtractedText(_ context.Context, id uuid.UUID, text string) error {
	return r.fill(id, func(p *domain.Paper) {
		if p.ExtractedText == "" {
			p.ExtractedText = text
		}
	})
}

func (r *fakePaperRepo) SetSummary(_ context.Context, id uuid.UUID, summary string) error {
	return r.fill(id, func(p *domain.Paper) {
		if p.Summary == "" {
			p.Summary = summary
		}
	})
}

func (r *fakePaperRepo) fill(id uuid.UUID, apply func(*domain.Paper)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	p, ok := r.papers[id]
	if !ok {
		return domain.ErrNotFound
	}
	apply(p)
	return nil
}

var _ repository.PaperRepository = (*fakePaperRepo)(nil)

// fakeJobRepo records job lifecycle calls and returns a configurable error.
type fakeJobRepo struct {
	mu  sync.Mutex
	err error

	markRunningCalls []string
	stages           []domain.Stage
	totalTarget      int
	counters         domain.Counters
	progress         float64
	completedResult  string
	failedMessage    string
	canceled         bool
}

func (r *fakeJobRepo) Create(context.Context, *domain.ReviewJob) error { return r.err }

func (r *fakeJobRepo) Get(context.Context, uuid.UUID) (*domain.ReviewJob, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) GetByTrackingID(context.Context, uuid.UUID) (*domain.ReviewJob, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) List(context.Context, repository.JobFilter) ([]*domain.ReviewJob, int64, error) {
	return nil, 0, nil
}

func (r *fakeJobRepo) CountActiveByUser(context.Context, string) (int, error) { return 0, nil }

func (r *fakeJobRepo) MarkRunning(_ context.Context, _ uuid.UUID, workflowID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.markRunningCalls = append(r.markRunningCalls, workflowID)
	return nil
}

func (r *fakeJobRepo) SetStage(_ context.Context, _ uuid.UUID, stage domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.stages = append(r.stages, stage)
	return nil
}

func (r *fakeJobRepo) SetTotalTarget(_ context.Context, _ uuid.UUID, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.totalTarget = total
	return nil
}

func (r *fakeJobRepo) SetCounters(_ context.Context, _ uuid.UUID, counters domain.Counters, progress float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.counters = counters
	r.progress = progress
	return nil
}

func (r *fakeJobRepo) UpdateProgress(_ context.Context, _ uuid.UUID, progress float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.progress = progress
	return nil
}

func (r *fakeJobRepo) Complete(_ context.Context, _ uuid.UUID, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.completedResult = result
	return nil
}

func (r *fakeJobRepo) Fail(_ context.Context, _ uuid.UUID, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.failedMessage = errorMsg
	return nil
}

func (r *fakeJobRepo) Cancel(context.Context, uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.canceled = true
	return nil
}

var _ repository.JobRepository = (*fakeJobRepo)(nil)

// fakeGenerator returns canned text or a configurable error and records the
// requests it received.
type fakeGenerator struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []llm.GenerationRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.GenerationRequest) (*llm.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.GenerationResult{Text: g.text, Model: "test-model", OutputTokens: 100}, nil
}

func (g *fakeGenerator) Provider() string { return "fake" }

// fakeFetcher serves canned download results keyed by URL.
type fakeFetcher struct {
	results map[string]*pdf.DownloadResult
	err     error
	calls   int
}

func (f *fakeFetcher) Download(_ context.Context, rawURL string) (*pdf.DownloadResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	result, ok := f.results[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w: no fixture for %s", pdf.ErrDownloadFailed, rawURL)
	}
	return result, nil
}

// fakeStore is an in-memory FileStore keyed by source URL.
type fakeStore struct {
	files   map[string][]byte
	putErr  error
	readErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string][]byte)}
}

func (s *fakeStore) Exists(sourceURL string) bool {
	_, ok := s.files[sourceURL]
	return ok
}

func (s *fakeStore) PathFor(sourceURL string) string {
	return "/cache/" + sourceURL
}

func (s *fakeStore) Put(sourceURL string, content []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.files[sourceURL] = content
	return s.PathFor(sourceURL), nil
}

func (s *fakeStore) Read(sourceURL string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	content, ok := s.files[sourceURL]
	if !ok {
		return nil, fmt.Errorf("no cached file for %s", sourceURL)
	}
	return content, nil
}

// fakeExtractor returns canned text or a configured error.
type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) Extract(*bytes.Reader) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

// fakePublisher captures published events.
type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []domain.JobEvent
}

func (p *fakePublisher) Publish(_ context.Context, event domain.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }
