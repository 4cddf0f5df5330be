package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// Memory is an in-process catalog for single-process deployments and tests.
type Memory struct {
	mu       sync.RWMutex
	byURL    map[string]*domain.Article
	byID     map[string]*domain.Article
	versions map[string][]domain.Version
}

var _ ports.Catalog = (*Memory)(nil)

// NewMemory builds an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		byURL:    map[string]*domain.Article{},
		byID:     map[string]*domain.Article{},
		versions: map[string][]domain.Version{},
	}
}

// FindArticleBySourceURL returns the article recorded under url, or nil.
func (m *Memory) FindArticleBySourceURL(_ context.Context, url string) (*domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if article, ok := m.byURL[url]; ok {
		copied := *article
		return &copied, nil
	}
	return nil, nil
}

// CreateArticle records a new article keyed by its source URL.
func (m *Memory) CreateArticle(_ context.Context, title string, source domain.Source) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	article := &domain.Article{
		ID:        uuid.NewString(),
		Title:     title,
		SourceURL: source.URL,
		CreatedAt: time.Now().UTC(),
	}
	m.byURL[source.URL] = article
	m.byID[article.ID] = article
	copied := *article
	return &copied, nil
}

// FindVersionByHash returns the version with the given content hash under the
// article, or nil.
func (m *Memory) FindVersionByHash(_ context.Context, articleID, hash string) (*domain.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.versions[articleID] {
		if v.Hash == hash {
			copied := v
			return &copied, nil
		}
	}
	return nil, nil
}

// CreateVersion appends an immutable version record.
func (m *Memory) CreateVersion(_ context.Context, version domain.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[version.ArticleID] = append(m.versions[version.ArticleID], version)
	return nil
}

// SetFeaturedImage promotes an image to the article's representative image.
func (m *Memory) SetFeaturedImage(_ context.Context, articleID, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if article, ok := m.byID[articleID]; ok {
		article.FeaturedImage = filePath
	}
	return nil
}

// DuplicateReport lists content hashes shared across distinct articles.
// Cross-article dedup is a reporting concern, not a storage decision.
func (m *Memory) DuplicateReport(_ context.Context) ([]domain.DuplicateGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := map[string]map[string]struct{}{}
	for articleID, versions := range m.versions {
		for _, v := range versions {
			if owners[v.Hash] == nil {
				owners[v.Hash] = map[string]struct{}{}
			}
			owners[v.Hash][articleID] = struct{}{}
		}
	}

	var report []domain.DuplicateGroup
	for hash, ids := range owners {
		if len(ids) < 2 {
			continue
		}
		group := domain.DuplicateGroup{Hash: hash}
		for id := range ids {
			group.ArticleIDs = append(group.ArticleIDs, id)
		}
		sort.Strings(group.ArticleIDs)
		report = append(report, group)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Hash < report[j].Hash })
	return report, nil
}

// VersionCount reports how many versions an article has. Test helper.
func (m *Memory) VersionCount(articleID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[articleID])
}

// ArticleCount reports the number of recorded articles. Test helper.
func (m *Memory) ArticleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
