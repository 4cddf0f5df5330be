package ports

import (
	"context"
	"net/http"
	"time"

	"PageVault/internal/domain"
)

// Catalog is the external metadata store of articles and versions.
type Catalog interface {
	FindArticleBySourceURL(ctx context.Context, url string) (*domain.Article, error)
	CreateArticle(ctx context.Context, title string, source domain.Source) (*domain.Article, error)
	FindVersionByHash(ctx context.Context, articleID, hash string) (*domain.Version, error)
	CreateVersion(ctx context.Context, version domain.Version) error
	SetFeaturedImage(ctx context.Context, articleID, filePath string) error
	DuplicateReport(ctx context.Context) ([]domain.DuplicateGroup, error)
}

// FetchResult carries a completed HTTP response body.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Fetcher retrieves remote documents. Implementations own timeouts and
// the User-Agent; a non-2xx status is returned as a result, not an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
	ResolveRedirects(ctx context.Context, url string) (string, error)
}

// KeyedLock is an ephemeral mutex service with TTL expiry. Acquire returns
// false immediately on contention; it never blocks.
type KeyedLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Task is a unit of deferred work dispatched by the Scheduler.
type Task struct {
	Name string
	Args map[string]string
}

// Scheduler runs tasks once at a requested time. Identical pending tasks
// (same name and args) are collapsed.
type Scheduler interface {
	ScheduleOnce(ctx context.Context, task Task, at time.Time) error
	IsScheduled(ctx context.Context, task Task) (bool, error)
}

// EventBus publishes versionCreated notifications to downstream consumers.
type EventBus interface {
	Publish(ctx context.Context, event domain.VersionCreated) error
}

// JobStore persists import jobs: counters in job metadata, the URL list and
// the failure log in side files.
type JobStore interface {
	SaveJob(ctx context.Context, job *domain.ImportJob) error
	LoadJob(ctx context.Context, id string) (*domain.ImportJob, error)
	OldestByStatus(ctx context.Context, status domain.JobStatus) (*domain.ImportJob, error)
	SaveURLList(ctx context.Context, id string, urls []string) error
	LoadURLList(ctx context.Context, id string) ([]string, error)
	AppendFailure(ctx context.Context, id string, failure domain.ImportFailure) error
	DeleteJob(ctx context.Context, id string) error
}
