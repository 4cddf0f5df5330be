package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

const versionsDirName = "versions"

// ContentHash returns the hex SHA-256 of a content body. Version identity
// within an article is decided by this digest.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// versionMeta is the metadata.json document written next to content.html.
type versionMeta struct {
	UUID      string          `json:"uuid"`
	SourceURL string          `json:"source_url"`
	Hash      string          `json:"hash"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	Meta      domain.PageMeta `json:"meta"`
}

// Engine decides whether incoming content is new, identical to an existing
// version, or a new version of an existing article, and performs the atomic
// on-disk write of accepted content.
type Engine struct {
	catalog ports.Catalog
	bus     ports.EventBus
	root    string
	logger  *slog.Logger

	// rename performs the final atomic move; swapped out in tests to
	// simulate a crash between temp-write and rename.
	rename func(oldpath, newpath string) error
}

// NewEngine wires the catalog and event bus against the archive data root.
func NewEngine(catalog ports.Catalog, bus ports.EventBus, dataRoot string, log *slog.Logger) (*Engine, error) {
	if err := os.MkdirAll(filepath.Join(dataRoot, versionsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create versions dir: %w", err)
	}
	return &Engine{
		catalog: catalog,
		bus:     bus,
		root:    dataRoot,
		logger:  log,
		rename:  os.Rename,
	}, nil
}

// Store runs the dedup decision sequence and writes accepted content.
//
// Re-ingesting unchanged content under a known URL returns the existing
// version unchanged: no new record, no new file. A crash mid-write never
// leaves a partial version visible, because content lands in a temp
// directory that is renamed into place in one step.
func (e *Engine) Store(ctx context.Context, source domain.Source, extract *domain.Extract, featuredImage string) (*domain.Version, error) {
	hash := ContentHash(extract.Content)

	article, err := e.catalog.FindArticleBySourceURL(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("find article %s: %w", source.URL, err)
	}

	if article != nil {
		existing, err := e.catalog.FindVersionByHash(ctx, article.ID, hash)
		if err != nil {
			return nil, fmt.Errorf("find version by hash: %w", err)
		}
		if existing != nil {
			if e.logger != nil {
				e.logger.Debug("content unchanged", "article", article.ID, "version", existing.ID)
			}
			return existing, nil
		}
	} else {
		article, err = e.catalog.CreateArticle(ctx, extract.Title, source)
		if err != nil {
			return nil, fmt.Errorf("create article %s: %w", source.URL, err)
		}
	}

	if featuredImage != "" && article.FeaturedImage == "" {
		if err := e.catalog.SetFeaturedImage(ctx, article.ID, featuredImage); err != nil {
			return nil, fmt.Errorf("set featured image: %w", err)
		}
		article.FeaturedImage = featuredImage
	}

	version := domain.Version{
		ID:        uuid.NewString(),
		ArticleID: article.ID,
		Source:    source,
		Title:     extract.Title,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}
	version.Path = filepath.Join(versionsDirName, version.ID)

	if err := e.writeVersionDir(version, extract); err != nil {
		return nil, err
	}

	if err := e.catalog.CreateVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("create version record: %w", err)
	}

	e.publish(ctx, version, extract)

	if e.logger != nil {
		e.logger.Info("version created", "article", article.ID, "version", version.ID, "hash", hash[:12])
	}
	return &version, nil
}

// writeVersionDir writes content.html and metadata.json into a temp
// directory on the same filesystem, then renames it into its final location.
// The final directory either fully exists or does not exist at all.
func (e *Engine) writeVersionDir(version domain.Version, extract *domain.Extract) error {
	tmp, err := os.MkdirTemp(e.root, ".version-")
	if err != nil {
		return &domain.StorageError{Op: "create temp dir", Err: err}
	}
	cleanup := func() { os.RemoveAll(tmp) }

	if err := os.WriteFile(filepath.Join(tmp, "content.html"), []byte(extract.Content), 0o644); err != nil {
		cleanup()
		return &domain.StorageError{Op: "write content", Err: err}
	}

	meta := versionMeta{
		UUID:      version.ID,
		SourceURL: version.Source.URL,
		Hash:      version.Hash,
		Title:     version.Title,
		CreatedAt: version.CreatedAt,
		Meta:      extract.Meta,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		cleanup()
		return &domain.StorageError{Op: "encode metadata", Err: err}
	}
	if err := os.WriteFile(filepath.Join(tmp, "metadata.json"), raw, 0o644); err != nil {
		cleanup()
		return &domain.StorageError{Op: "write metadata", Err: err}
	}

	if err := e.rename(tmp, filepath.Join(e.root, version.Path)); err != nil {
		cleanup()
		return &domain.StorageError{Op: "rename version dir", Err: err}
	}
	return nil
}

// publish is fire-and-forget: a subscriber failure never fails the store.
func (e *Engine) publish(ctx context.Context, version domain.Version, extract *domain.Extract) {
	if e.bus == nil {
		return
	}
	event := domain.VersionCreated{
		VersionID: version.ID,
		ArticleID: version.ArticleID,
		Title:     version.Title,
		Content:   extract.Content,
		Meta:      extract.Meta,
	}
	if err := e.bus.Publish(ctx, event); err != nil && e.logger != nil {
		e.logger.Warn("version event publish failed", "version", version.ID, "error", err)
	}
}
