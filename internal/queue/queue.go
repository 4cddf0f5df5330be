package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// Task names dispatched through the external scheduler.
const (
	TaskIngestURL    = "ingest_url"
	TaskProcessBatch = "process_import_batch"
)

const defaultBatchLimit = 10

// Queue accepts bulk URL lists, pre-filters known articles, and dispatches
// ingestion work in throttled batches with a processed-count watermark.
type Queue struct {
	catalog   ports.Catalog
	store     ports.JobStore
	scheduler ports.Scheduler
	logger    *slog.Logger

	batchLimit       int
	stagger          time.Duration
	dispatchInterval time.Duration
}

// NewQueue wires the catalog pre-filter, job store, and scheduler.
func NewQueue(catalog ports.Catalog, store ports.JobStore, scheduler ports.Scheduler, batchLimit int, stagger, dispatchInterval time.Duration, log *slog.Logger) *Queue {
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	if stagger <= 0 {
		stagger = 5 * time.Second
	}
	if dispatchInterval <= 0 {
		dispatchInterval = time.Minute
	}
	return &Queue{
		catalog:          catalog,
		store:            store,
		scheduler:        scheduler,
		logger:           log,
		batchLimit:       batchLimit,
		stagger:          stagger,
		dispatchInterval: dispatchInterval,
	}
}

// CreateJob deduplicates the input list, pre-filters URLs already recorded as
// an article's source, persists the surviving list to a side file, and
// schedules the first dispatcher run. When every URL filters away the
// submission fails with domain.ErrAllDuplicates.
func (q *Queue) CreateJob(ctx context.Context, urls []string, submitter string) (*domain.ImportJob, error) {
	unique := dedupe(urls)

	var pending []string
	skipped := 0
	for _, u := range unique {
		article, err := q.catalog.FindArticleBySourceURL(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("pre-filter %s: %w", u, err)
		}
		if article != nil {
			skipped++
			continue
		}
		pending = append(pending, u)
	}

	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: %d submitted", domain.ErrAllDuplicates, len(urls))
	}

	now := time.Now().UTC()
	job := &domain.ImportJob{
		ID:        uuid.NewString(),
		Submitter: submitter,
		Status:    domain.JobPending,
		Total:     len(pending),
		Skipped:   skipped,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.store.SaveURLList(ctx, job.ID, pending); err != nil {
		return nil, fmt.Errorf("persist url list: %w", err)
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	if err := q.scheduler.ScheduleOnce(ctx, dispatcherTask(), now); err != nil {
		return nil, fmt.Errorf("schedule dispatcher: %w", err)
	}

	if q.logger != nil {
		q.logger.Info("import job created", "job", job.ID, "total", job.Total, "skipped", job.Skipped, "submitter", submitter)
	}
	return job, nil
}

// ProcessNextBatch slices the next limit unprocessed URLs of the oldest
// processing job (or promotes the oldest pending job) and schedules one
// ingestion task per URL, staggered to avoid a thundering herd downstream.
// Returns the number of dispatched tasks.
func (q *Queue) ProcessNextBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = q.batchLimit
	}

	job, err := q.store.OldestByStatus(ctx, domain.JobProcessing)
	if err != nil {
		return 0, fmt.Errorf("find processing job: %w", err)
	}
	if job == nil {
		job, err = q.store.OldestByStatus(ctx, domain.JobPending)
		if err != nil {
			return 0, fmt.Errorf("find pending job: %w", err)
		}
		if job == nil {
			return 0, nil
		}
		job.Status = domain.JobProcessing
	}

	urls, err := q.store.LoadURLList(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("load url list %s: %w", job.ID, err)
	}

	start := job.Processed
	end := start + limit
	if end > len(urls) {
		end = len(urls)
	}

	now := time.Now().UTC()
	for i, u := range urls[start:end] {
		task := ports.Task{
			Name: TaskIngestURL,
			Args: map[string]string{"url": u, "job_id": job.ID},
		}
		if err := q.scheduler.ScheduleOnce(ctx, task, now.Add(time.Duration(i)*q.stagger)); err != nil {
			return 0, fmt.Errorf("schedule ingest %s: %w", u, err)
		}
	}
	dispatched := end - start

	job.Processed = end
	job.UpdatedAt = now
	if job.Processed >= job.Total {
		job.Status = domain.JobCompleted
	} else {
		if err := q.scheduler.ScheduleOnce(ctx, dispatcherTask(), now.Add(q.dispatchInterval)); err != nil {
			return 0, fmt.Errorf("schedule next dispatcher run: %w", err)
		}
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return 0, fmt.Errorf("save job %s: %w", job.ID, err)
	}

	if q.logger != nil {
		q.logger.Debug("batch dispatched", "job", job.ID, "dispatched", dispatched, "processed", job.Processed, "total", job.Total)
	}
	return dispatched, nil
}

// Watchdog restarts the dispatcher when a job sits in processing or pending
// with no scheduled dispatcher run, recovering from a crashed scheduler.
func (q *Queue) Watchdog(ctx context.Context) error {
	job, err := q.store.OldestByStatus(ctx, domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("find processing job: %w", err)
	}
	if job == nil {
		job, err = q.store.OldestByStatus(ctx, domain.JobPending)
		if err != nil {
			return fmt.Errorf("find pending job: %w", err)
		}
	}
	if job == nil {
		return nil
	}

	scheduled, err := q.scheduler.IsScheduled(ctx, dispatcherTask())
	if err != nil {
		return fmt.Errorf("check dispatcher schedule: %w", err)
	}
	if scheduled {
		return nil
	}

	if q.logger != nil {
		q.logger.Warn("stalled import dispatcher restarted", "job", job.ID, "status", job.Status)
	}
	return q.scheduler.ScheduleOnce(ctx, dispatcherTask(), time.Now().UTC())
}

// RecordFailure logs one per-URL ingestion failure against the job and
// increments its failure counter. Batch processing never halts on these.
func (q *Queue) RecordFailure(ctx context.Context, jobID, url string, ingestErr error) error {
	failure := domain.ImportFailure{
		URL:        url,
		Error:      ingestErr.Error(),
		OccurredAt: time.Now().UTC(),
	}
	if err := q.store.AppendFailure(ctx, jobID, failure); err != nil {
		return fmt.Errorf("append failure: %w", err)
	}

	job, err := q.store.LoadJob(ctx, jobID)
	if err != nil || job == nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	job.Failed++
	job.UpdatedAt = time.Now().UTC()
	return q.store.SaveJob(ctx, job)
}

// Job exposes job metadata for the status surface.
func (q *Queue) Job(ctx context.Context, id string) (*domain.ImportJob, error) {
	return q.store.LoadJob(ctx, id)
}

func dispatcherTask() ports.Task {
	return ports.Task{Name: TaskProcessBatch}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
