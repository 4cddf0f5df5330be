package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// PostgresRepository persists the article/version catalog in Postgres.
//
// Schema:
//
//	articles(id uuid pk, title text, source_url text unique,
//	         featured_image text, created_at timestamptz)
//	versions(id uuid pk, article_id uuid references articles,
//	         source_url text, title text, path text, hash text,
//	         created_at timestamptz)
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.Catalog = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// FindArticleBySourceURL returns the article recorded under url, or nil.
func (r *PostgresRepository) FindArticleBySourceURL(ctx context.Context, url string) (*domain.Article, error) {
	query, args, err := r.builder.
		Select("id", "title", "source_url", "coalesce(featured_image, '')", "created_at").
		From("articles").
		Where(sq.Eq{"source_url": url}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var article domain.Article
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&article.ID, &article.Title, &article.SourceURL, &article.FeaturedImage, &article.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	return &article, nil
}

// CreateArticle records a new article keyed by its source URL.
func (r *PostgresRepository) CreateArticle(ctx context.Context, title string, source domain.Source) (*domain.Article, error) {
	article := domain.Article{
		ID:        uuid.NewString(),
		Title:     title,
		SourceURL: source.URL,
		CreatedAt: time.Now().UTC(),
	}

	query, args, err := r.builder.
		Insert("articles").
		Columns("id", "title", "source_url", "created_at").
		Values(article.ID, article.Title, article.SourceURL, article.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}
	return &article, nil
}

// FindVersionByHash returns the version with the given content hash under
// the article, or nil.
func (r *PostgresRepository) FindVersionByHash(ctx context.Context, articleID, hash string) (*domain.Version, error) {
	query, args, err := r.builder.
		Select("id", "article_id", "source_url", "title", "path", "hash", "created_at").
		From("versions").
		Where(sq.Eq{"article_id": articleID, "hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		version   domain.Version
		sourceURL string
	)
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&version.ID, &version.ArticleID, &sourceURL, &version.Title, &version.Path, &version.Hash, &version.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}

	source, err := domain.NewSource(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("stored source %s: %w", sourceURL, err)
	}
	version.Source = source
	return &version, nil
}

// CreateVersion appends an immutable version record.
func (r *PostgresRepository) CreateVersion(ctx context.Context, version domain.Version) error {
	query, args, err := r.builder.
		Insert("versions").
		Columns("id", "article_id", "source_url", "title", "path", "hash", "created_at").
		Values(version.ID, version.ArticleID, version.Source.URL, version.Title, version.Path, version.Hash, version.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// SetFeaturedImage promotes an image to the article's representative image.
func (r *PostgresRepository) SetFeaturedImage(ctx context.Context, articleID, filePath string) error {
	query, args, err := r.builder.
		Update("articles").
		Set("featured_image", filePath).
		Where(sq.Eq{"id": articleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update featured image: %w", err)
	}
	return nil
}

// DuplicateReport lists content hashes shared across distinct articles.
func (r *PostgresRepository) DuplicateReport(ctx context.Context) ([]domain.DuplicateGroup, error) {
	query := `SELECT hash, array_agg(DISTINCT article_id ORDER BY article_id)
              FROM versions
              GROUP BY hash
              HAVING COUNT(DISTINCT article_id) > 1
              ORDER BY hash`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	var report []domain.DuplicateGroup
	for rows.Next() {
		var group domain.DuplicateGroup
		var ids pq.StringArray
		if err := rows.Scan(&group.Hash, &ids); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}
		group.ArticleIDs = []string(ids)
		report = append(report, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return report, nil
}
