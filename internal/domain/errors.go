package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion pipeline. Callers match with errors.Is.
var (
	// ErrInvalidSource: malformed URL, rejected before any network access.
	ErrInvalidSource = errors.New("invalid source URL")

	// ErrInsufficientContent: extraction failed the minimum-viability gate;
	// nothing is stored.
	ErrInsufficientContent = errors.New("insufficient content")

	// ErrAlreadyInProgress: ingestion lock contention. Rejected immediately,
	// never queued.
	ErrAlreadyInProgress = errors.New("ingestion already in progress")

	// ErrAllDuplicates: every URL of a batch submission pre-filtered away.
	ErrAllDuplicates = errors.New("all submitted URLs are already archived")
)

// FetchError reports a failed page fetch: a transport error or a non-200
// status. It aborts the ingestion with no partial state.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError reports a directory, write, or rename failure inside the
// storage engine. It is raised before any catalog record is committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AssetFailure is a soft per-image failure: recorded, the image is skipped,
// and the ingestion continues.
type AssetFailure struct {
	URL string
	Err error
}

func (f AssetFailure) Error() string {
	return fmt.Sprintf("asset %s: %v", f.URL, f.Err)
}
