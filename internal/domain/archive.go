package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source is a validated, normalized URL identity. Immutable after construction.
type Source struct {
	URL      string
	Domain   string
	Protocol string
}

// NewSource validates rawURL, strips the trailing slash, and derives
// domain/protocol. Construction fails with ErrInvalidSource on malformed input.
func NewSource(rawURL string) (Source, error) {
	trimmed := strings.TrimSpace(rawURL)
	trimmed = strings.TrimSuffix(trimmed, "/")

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %s: %v", ErrInvalidSource, rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, fmt.Errorf("%w: %s: unsupported scheme %q", ErrInvalidSource, rawURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return Source{}, fmt.Errorf("%w: %s: missing host", ErrInvalidSource, rawURL)
	}

	return Source{
		URL:      trimmed,
		Domain:   parsed.Hostname(),
		Protocol: parsed.Scheme,
	}, nil
}

// Article is a logical document identity, stable across content revisions,
// keyed by its first-seen canonical source URL.
type Article struct {
	ID            string
	Title         string
	SourceURL     string
	FeaturedImage string
	CreatedAt     time.Time
}

// Version is an immutable content snapshot belonging to an Article.
// Path is relative to the archive data root.
type Version struct {
	ID        string
	ArticleID string
	Source    Source
	Title     string
	Path      string
	Hash      string
	CreatedAt time.Time
}

// PageMeta carries auxiliary metadata extracted alongside the main content.
type PageMeta struct {
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Published   string `json:"published,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Extract is the output of content normalization: the best content region
// serialized as HTML plus page-level metadata.
type Extract struct {
	Title   string
	Content string
	Meta    PageMeta
}

// VersionCreated is published after a version lands on disk. Consumers
// (search indexing, embedding generation, analysis) subscribe to it; the
// storage path never waits on them.
type VersionCreated struct {
	VersionID string   `json:"version_id"`
	ArticleID string   `json:"article_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Meta      PageMeta `json:"meta"`
}

// JobStatus enumerates import job lifecycle states.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ImportJob is a batch work item. The URL list is persisted separately;
// only counters and status live here.
type ImportJob struct {
	ID        string    `json:"id"`
	Submitter string    `json:"submitter"`
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportFailure is one per-URL failure recorded in a job-scoped log.
type ImportFailure struct {
	URL        string    `json:"url"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DuplicateGroup reports one content hash shared by more than one article.
type DuplicateGroup struct {
	Hash       string
	ArticleIDs []string
}
