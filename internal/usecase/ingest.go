package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"PageVault/internal/assets"
	"PageVault/internal/domain"
	"PageVault/internal/normalizer"
	"PageVault/internal/ports"
	"PageVault/internal/queue"
	"PageVault/internal/source"
	"PageVault/internal/storage"
)

// IngestDeps wires all collaborators into the ingestion pipeline.
type IngestDeps struct {
	Resolver   *source.Resolver
	Fetcher    ports.Fetcher
	Normalizer *normalizer.Normalizer
	Localizer  *assets.Localizer
	Engine     *storage.Engine
	Locks      ports.KeyedLock
	Queue      *queue.Queue
	LockTTL    time.Duration
	Logger     *slog.Logger
}

// Ingestion runs one unit of work: resolve, fetch, normalize, localize,
// store. Each invocation is an independent task; mutual exclusion per URL is
// provided by a short-TTL keyed lock.
type Ingestion struct {
	resolver   *source.Resolver
	fetcher    ports.Fetcher
	normalizer *normalizer.Normalizer
	localizer  *assets.Localizer
	engine     *storage.Engine
	locks      ports.KeyedLock
	queue      *queue.Queue
	lockTTL    time.Duration
	logger     *slog.Logger
}

// NewIngestion constructs the pipeline use case.
func NewIngestion(deps IngestDeps) *Ingestion {
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Ingestion{
		resolver:   deps.Resolver,
		fetcher:    deps.Fetcher,
		normalizer: deps.Normalizer,
		localizer:  deps.Localizer,
		engine:     deps.Engine,
		locks:      deps.Locks,
		queue:      deps.Queue,
		lockTTL:    ttl,
		logger:     deps.Logger,
	}
}

// Ingest archives one URL. A concurrent attempt for the same input URL fails
// immediately with domain.ErrAlreadyInProgress; duplicate concurrent requests
// are a race to surface, not to serialize. The lock is released on every
// exit path.
func (in *Ingestion) Ingest(ctx context.Context, rawURL string) (*domain.Version, error) {
	key := lockKey(rawURL)
	acquired, err := in.locks.Acquire(ctx, key, in.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyInProgress, rawURL)
	}
	defer func() {
		if releaseErr := in.locks.Release(ctx, key); releaseErr != nil && in.logger != nil {
			in.logger.Warn("lock release failed", "url", rawURL, "error", releaseErr)
		}
	}()

	return in.ingestLocked(ctx, rawURL)
}

func (in *Ingestion) ingestLocked(ctx context.Context, rawURL string) (*domain.Version, error) {
	src, err := in.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res, err := in.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, &domain.FetchError{URL: src.URL, Err: err}
	}
	if res.StatusCode != 200 {
		return nil, &domain.FetchError{URL: src.URL, StatusCode: res.StatusCode}
	}

	extract, err := in.normalizer.Normalize(string(res.Body))
	if err != nil {
		return nil, err
	}

	localized, err := in.localizer.Localize(ctx, extract.Content, src)
	if err != nil {
		return nil, fmt.Errorf("localize assets: %w", err)
	}
	if len(localized.Failures) > 0 && in.logger != nil {
		in.logger.Warn("images skipped", "url", src.URL, "count", len(localized.Failures))
	}
	extract.Content = localized.HTML

	version, err := in.engine.Store(ctx, src, extract, localized.FeaturedImage)
	if err != nil {
		return nil, err
	}
	return version, nil
}

// HandleTask routes scheduler dispatches. Batch-scoped ingestion failures are
// recorded in the job's failure log and do not propagate.
func (in *Ingestion) HandleTask(ctx context.Context, task ports.Task) {
	switch task.Name {
	case queue.TaskIngestURL:
		url := task.Args["url"]
		jobID := task.Args["job_id"]
		if _, err := in.Ingest(ctx, url); err != nil {
			if in.logger != nil {
				in.logger.Error("batch ingest failed", "url", url, "job", jobID, "error", err)
			}
			if in.queue != nil && jobID != "" {
				if recErr := in.queue.RecordFailure(ctx, jobID, url, err); recErr != nil && in.logger != nil {
					in.logger.Error("failure record failed", "job", jobID, "error", recErr)
				}
			}
		}
	case queue.TaskProcessBatch:
		if in.queue == nil {
			return
		}
		if _, err := in.queue.ProcessNextBatch(ctx, 0); err != nil && in.logger != nil {
			in.logger.Error("batch dispatch failed", "error", err)
		}
	default:
		if in.logger != nil {
			in.logger.Warn("unknown task", "name", task.Name)
		}
	}
}

// lockKey digests the raw input URL so lock keys stay short and uniform.
func lockKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "ingest:" + hex.EncodeToString(sum[:])
}
