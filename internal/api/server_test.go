package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PageVault/internal/assets"
	"PageVault/internal/infrastructure/catalog"
	"PageVault/internal/infrastructure/events"
	"PageVault/internal/infrastructure/lock"
	"PageVault/internal/normalizer"
	"PageVault/internal/ports"
	"PageVault/internal/queue"
	"PageVault/internal/source"
	"PageVault/internal/storage"
	"PageVault/internal/usecase"
)

type stubFetcher struct {
	pages map[string]string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*ports.FetchResult, error) {
	if page, ok := f.pages[url]; ok {
		return &ports.FetchResult{StatusCode: 200, Body: []byte(page), Header: http.Header{}}, nil
	}
	return &ports.FetchResult{StatusCode: 404, Header: http.Header{}}, nil
}

func (f *stubFetcher) ResolveRedirects(_ context.Context, url string) (string, error) {
	return url, nil
}

type stubScheduler struct{}

func (stubScheduler) ScheduleOnce(context.Context, ports.Task, time.Time) error { return nil }
func (stubScheduler) IsScheduled(context.Context, ports.Task) (bool, error)     { return true, nil }

func goodPage() string {
	var b strings.Builder
	for p := 0; p < 3; p++ {
		b.WriteString("<p>")
		for w := 0; w < 50; w++ {
			fmt.Fprintf(&b, "token%dx%d ", p, w)
		}
		b.WriteString("</p>")
	}
	return `<html><title>Good Page</title><body><article>` + b.String() + `</article></body></html>`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	fetcher := &stubFetcher{pages: map[string]string{"http://ex.com/good": goodPage()}}
	cat := catalog.NewMemory()
	engine, err := storage.NewEngine(cat, events.NewMemoryBus(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	media, err := storage.NewMediaCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaCache error: %v", err)
	}
	jobStore, err := queue.NewFileJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileJobStore error: %v", err)
	}
	imports := queue.NewQueue(cat, jobStore, stubScheduler{}, 0, time.Second, time.Minute, nil)

	ingestion := usecase.NewIngestion(usecase.IngestDeps{
		Resolver:   source.NewResolver(fetcher, nil),
		Fetcher:    fetcher,
		Normalizer: normalizer.New(nil),
		Localizer:  assets.NewLocalizer(fetcher, media, time.Second, nil),
		Engine:     engine,
		Locks:      lock.NewMemoryLock(),
		Queue:      imports,
		LockTTL:    time.Minute,
	})
	return NewServer(ingestion, imports, media)
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngestEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := postJSON(t, server, "/api/ingest", map[string]string{"url": "http://ex.com/good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		VersionID string `json:"version_id"`
		ArticleID string `json:"article_id"`
		Hash      string `json:"hash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.VersionID == "" || resp.ArticleID == "" || len(resp.Hash) != 64 {
		t.Fatalf("incomplete response: %+v", resp)
	}
}

func TestIngestEndpointErrorMapping(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing url", map[string]string{}, http.StatusBadRequest},
		{"invalid url", map[string]string{"url": "nonsense"}, http.StatusBadRequest},
		{"fetch failure", map[string]string{"url": "http://ex.com/missing"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, server, "/api/ingest", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestImportSubmissionSurface(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := postJSON(t, server, "/api/imports", map[string]any{
		"urls":      []string{"http://ex.com/1", "http://ex.com/2"},
		"submitter": "operator-7",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID   string `json:"job_id"`
		Total   int    `json:"total"`
		Skipped int    `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" || resp.Total != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/imports/"+resp.JobID, nil)
	statusRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status lookup failed: %d", statusRec.Code)
	}
}

func TestImportAllDuplicatesConflict(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	// Archive the page first so the pre-filter rejects the whole batch.
	if rec := postJSON(t, server, "/api/ingest", map[string]string{"url": "http://ex.com/good"}); rec.Code != http.StatusOK {
		t.Fatalf("seed ingest failed: %d", rec.Code)
	}

	rec := postJSON(t, server, "/api/imports", map[string]any{
		"urls": []string{"http://ex.com/good"}, "submitter": "op",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMediaRouteRejectsBadNames(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/media/..hidden", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestImportStatusUnknownJob(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/imports/no-such-job", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
