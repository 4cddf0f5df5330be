package source

import (
	"context"
	"fmt"
	"log/slog"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
)

// Resolver normalizes an input URL and follows redirects to its canonical
// destination before any content is fetched. Feed and short-link redirectors
// would otherwise register the same document under N distinct sources.
type Resolver struct {
	fetcher ports.Fetcher
	logger  *slog.Logger
}

// NewResolver wires the redirect-following fetch collaborator.
func NewResolver(fetcher ports.Fetcher, log *slog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, logger: log}
}

// Resolve validates rawURL and re-wraps the redirect chain's final URL as a
// Source. Syntax errors fail with domain.ErrInvalidSource before any network
// access.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (domain.Source, error) {
	src, err := domain.NewSource(rawURL)
	if err != nil {
		return domain.Source{}, err
	}

	if r.fetcher == nil {
		return src, nil
	}

	final, err := r.fetcher.ResolveRedirects(ctx, src.URL)
	if err != nil {
		return domain.Source{}, &domain.FetchError{URL: src.URL, Err: fmt.Errorf("resolve redirects: %w", err)}
	}
	if final == src.URL {
		return src, nil
	}

	canonical, err := domain.NewSource(final)
	if err != nil {
		return domain.Source{}, fmt.Errorf("canonical URL for %s: %w", rawURL, err)
	}

	if r.logger != nil && canonical.URL != src.URL {
		r.logger.Debug("canonicalized source", "input", src.URL, "canonical", canonical.URL)
	}
	return canonical, nil
}
