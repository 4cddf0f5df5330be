package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"PageVault/internal/assets"
	"PageVault/internal/domain"
	"PageVault/internal/infrastructure/catalog"
	"PageVault/internal/infrastructure/events"
	"PageVault/internal/infrastructure/lock"
	"PageVault/internal/normalizer"
	"PageVault/internal/ports"
	"PageVault/internal/queue"
	"PageVault/internal/source"
	"PageVault/internal/storage"
)

// fakeFetcher serves canned pages and records traffic.
type fakeFetcher struct {
	mu         sync.Mutex
	pages      map[string]string
	statuses   map[string]int
	redirects  map[string]string
	fetchCalls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*ports.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	if status, ok := f.statuses[url]; ok {
		return &ports.FetchResult{StatusCode: status, Header: http.Header{}}, nil
	}
	if page, ok := f.pages[url]; ok {
		return &ports.FetchResult{StatusCode: 200, Body: []byte(page), Header: http.Header{}}, nil
	}
	return nil, fmt.Errorf("unreachable %s", url)
}

func (f *fakeFetcher) ResolveRedirects(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if final, ok := f.redirects[url]; ok {
		return final, nil
	}
	return url, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func viablePage(marker string) string {
	var paragraphs strings.Builder
	for p := 0; p < 3; p++ {
		paragraphs.WriteString("<p>")
		for w := 0; w < 50; w++ {
			fmt.Fprintf(&paragraphs, "%s%dw%d ", marker, p, w)
		}
		paragraphs.WriteString("</p>")
	}
	return `<html><head><title>` + marker + ` title</title></head><body><article>` +
		paragraphs.String() + `</article></body></html>`
}

type testPipeline struct {
	ingestion *Ingestion
	fetcher   *fakeFetcher
	catalog   *catalog.Memory
	bus       *events.MemoryBus
	locks     *lock.MemoryLock
}

func newTestPipeline(t *testing.T, fetcher *fakeFetcher) *testPipeline {
	t.Helper()

	cat := catalog.NewMemory()
	bus := events.NewMemoryBus()
	engine, err := storage.NewEngine(cat, bus, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	media, err := storage.NewMediaCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaCache error: %v", err)
	}
	locks := lock.NewMemoryLock()

	ingestion := NewIngestion(IngestDeps{
		Resolver:   source.NewResolver(fetcher, nil),
		Fetcher:    fetcher,
		Normalizer: normalizer.New(nil),
		Localizer:  assets.NewLocalizer(fetcher, media, time.Second, nil),
		Engine:     engine,
		Locks:      locks,
		LockTTL:    time.Minute,
	})
	return &testPipeline{ingestion: ingestion, fetcher: fetcher, catalog: cat, bus: bus, locks: locks}
}

func TestIngestEndToEnd(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"http://ex.com/a": viablePage("alpha")}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	version, err := tp.ingestion.Ingest(ctx, "http://ex.com/a")
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if version.Title != "alpha title" {
		t.Fatalf("unexpected title: %s", version.Title)
	}
	if tp.catalog.ArticleCount() != 1 {
		t.Fatalf("expected one article")
	}
	if len(tp.bus.Events()) != 1 {
		t.Fatalf("expected one versionCreated event")
	}
}

func TestIngestIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"http://ex.com/a": viablePage("alpha")}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	first, err := tp.ingestion.Ingest(ctx, "http://ex.com/a")
	if err != nil {
		t.Fatalf("first Ingest error: %v", err)
	}
	second, err := tp.ingestion.Ingest(ctx, "http://ex.com/a")
	if err != nil {
		t.Fatalf("second Ingest error: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("unchanged content produced a new version")
	}
	if tp.catalog.VersionCount(first.ArticleID) != 1 {
		t.Fatalf("duplicate version recorded")
	}
	if len(tp.bus.Events()) != 1 {
		t.Fatalf("idempotent re-ingest emitted an event")
	}
}

func TestIngestRevisionUnderSameArticle(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"http://ex.com/a": viablePage("alpha")}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	v1, err := tp.ingestion.Ingest(ctx, "http://ex.com/a")
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	fetcher.mu.Lock()
	fetcher.pages["http://ex.com/a"] = viablePage("beta")
	fetcher.mu.Unlock()

	v2, err := tp.ingestion.Ingest(ctx, "http://ex.com/a")
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	if v2.ArticleID != v1.ArticleID || v2.Hash == v1.Hash {
		t.Fatalf("revision handling broken: %+v vs %+v", v1, v2)
	}
	if tp.catalog.ArticleCount() != 1 {
		t.Fatalf("revision created a second article")
	}
}

func TestIngestCanonicalizationCollapse(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages:     map[string]string{"http://ex.com/x": viablePage("alpha")},
		redirects: map[string]string{"http://short.ln/abc": "http://ex.com/x"},
	}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	viaRedirect, err := tp.ingestion.Ingest(ctx, "http://short.ln/abc")
	if err != nil {
		t.Fatalf("Ingest via redirect error: %v", err)
	}
	direct, err := tp.ingestion.Ingest(ctx, "http://ex.com/x")
	if err != nil {
		t.Fatalf("direct Ingest error: %v", err)
	}

	if viaRedirect.ArticleID != direct.ArticleID {
		t.Fatalf("redirector and direct URL produced distinct articles")
	}
	if tp.catalog.ArticleCount() != 1 {
		t.Fatalf("canonicalization did not collapse sources")
	}
}

func TestIngestLockExclusion(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"http://ex.com/a": viablePage("alpha")}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	acquired, err := tp.locks.Acquire(ctx, lockKey("http://ex.com/a"), time.Minute)
	if err != nil || !acquired {
		t.Fatalf("pre-acquire failed: %v", err)
	}

	if _, err := tp.ingestion.Ingest(ctx, "http://ex.com/a"); !errors.Is(err, domain.ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}
	if fetcher.calls() != 0 {
		t.Fatalf("fetch performed despite held lock")
	}
}

func TestIngestReleasesLockOnFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{statuses: map[string]int{"http://ex.com/gone": 404}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	var fetchErr *domain.FetchError
	if _, err := tp.ingestion.Ingest(ctx, "http://ex.com/gone"); !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}

	// The lock must be free again after the failed attempt.
	acquired, err := tp.locks.Acquire(ctx, lockKey("http://ex.com/gone"), time.Minute)
	if err != nil || !acquired {
		t.Fatalf("lock not released on failure path")
	}
}

func TestIngestInsufficientContentLeavesNoState(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"http://ex.com/thin": `<html><title>Thin</title><body><article><p>only a few words here</p></article></body></html>`,
	}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	if _, err := tp.ingestion.Ingest(ctx, "http://ex.com/thin"); !errors.Is(err, domain.ErrInsufficientContent) {
		t.Fatalf("expected ErrInsufficientContent, got %v", err)
	}
	if tp.catalog.ArticleCount() != 0 {
		t.Fatalf("shell page created an article")
	}
	if len(tp.bus.Events()) != 0 {
		t.Fatalf("shell page emitted an event")
	}
}

func TestHandleTaskRecordsBatchFailures(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{statuses: map[string]int{"http://ex.com/bad": 500}}
	tp := newTestPipeline(t, fetcher)
	ctx := context.Background()

	store, err := queue.NewFileJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileJobStore error: %v", err)
	}
	imports := queue.NewQueue(tp.catalog, store, noopScheduler{}, 0, time.Second, time.Minute, nil)
	tp.ingestion.queue = imports

	job, err := imports.CreateJob(ctx, []string{"http://ex.com/bad"}, "op")
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	tp.ingestion.HandleTask(ctx, ports.Task{
		Name: queue.TaskIngestURL,
		Args: map[string]string{"url": "http://ex.com/bad", "job_id": job.ID},
	})

	loaded, err := imports.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job error: %v", err)
	}
	if loaded.Failed != 1 {
		t.Fatalf("batch failure not recorded: %+v", loaded)
	}
}

type noopScheduler struct{}

func (noopScheduler) ScheduleOnce(context.Context, ports.Task, time.Time) error { return nil }
func (noopScheduler) IsScheduled(context.Context, ports.Task) (bool, error)     { return true, nil }
