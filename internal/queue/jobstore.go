package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

const (
	metaSuffix   = ".meta.json"
	errorsSuffix = "_errors.json"
)

// FileJobStore keeps import jobs under data_root/imports: the URL list in
// job_<id>.json as a side file, counters/status in job_<id>.meta.json, and
// the failure log in job_<id>_errors.json.
type FileJobStore struct {
	dir string
	mu  sync.Mutex
}

var _ ports.JobStore = (*FileJobStore)(nil)

// NewFileJobStore creates the imports directory if needed.
func NewFileJobStore(dir string) (*FileJobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create imports dir: %w", err)
	}
	return &FileJobStore{dir: dir}, nil
}

// SaveJob writes job metadata atomically.
func (s *FileJobStore) SaveJob(_ context.Context, job *domain.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON("job_"+job.ID+metaSuffix, job)
}

// LoadJob reads job metadata; a missing job returns nil.
func (s *FileJobStore) LoadJob(_ context.Context, id string) (*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJob("job_" + id + metaSuffix)
}

// OldestByStatus scans job metadata files and returns the oldest job in the
// requested status, or nil when none exists.
func (s *FileJobStore) OldestByStatus(_ context.Context, status domain.JobStatus) (*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read imports dir: %w", err)
	}

	var oldest *domain.ImportJob
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "job_") || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		job, err := s.readJob(name)
		if err != nil || job == nil || job.Status != status {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	return oldest, nil
}

// SaveURLList persists the job's URL list side file.
func (s *FileJobStore) SaveURLList(_ context.Context, id string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON("job_"+id+".json", urls)
}

// LoadURLList reads the job's URL list side file.
func (s *FileJobStore) LoadURLList(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, "job_"+id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read url list %s: %w", id, err)
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, fmt.Errorf("decode url list %s: %w", id, err)
	}
	return urls, nil
}

// AppendFailure adds one entry to the job-scoped failure log.
func (s *FileJobStore) AppendFailure(_ context.Context, id string, failure domain.ImportFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := "job_" + id + errorsSuffix
	var failures []domain.ImportFailure
	if raw, err := os.ReadFile(filepath.Join(s.dir, name)); err == nil {
		if err := json.Unmarshal(raw, &failures); err != nil {
			return fmt.Errorf("decode failure log %s: %w", id, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read failure log %s: %w", id, err)
	}

	failures = append(failures, failure)
	return s.writeJSON(name, failures)
}

// DeleteJob removes the job's metadata and side files.
func (s *FileJobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{
		"job_" + id + metaSuffix,
		"job_" + id + ".json",
		"job_" + id + errorsSuffix,
	} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *FileJobStore) readJob(name string) (*domain.ImportJob, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var job domain.ImportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &job, nil
}

// writeJSON writes through a temp file and rename so readers never observe a
// half-written document.
func (s *FileJobStore) writeJSON(name string, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".job-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
