package assets

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PageVault/internal/domain"
	"PageVault/internal/ports"
	"PageVault/internal/storage"
)

// MediaRoutePrefix is the locally-served proxy route for cached images.
const MediaRoutePrefix = "/media/"

// originalSrcAttr records provenance on rewritten images.
const originalSrcAttr = "data-original-src"

// lazySrcAttrs are consulted when src is empty, a data URI, or a placeholder.
var lazySrcAttrs = []string{"data-src", "data-lazy-src"}

// placeholderPatterns mark src values that lazy-loading scripts swap out.
var placeholderPatterns = []string{"placeholder", "blank.gif", "spacer", "1x1", "loading.gif"}

var knownImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".svg": true, ".avif": true, ".ico": true,
}

// Result is the outcome of localizing one content fragment. Failures are the
// soft per-image errors that were skipped over.
type Result struct {
	HTML          string
	FeaturedImage string
	Failures      []domain.AssetFailure
}

// Localizer rewrites in-content image references to the content-addressed
// media cache. One broken image never fails the whole ingestion.
type Localizer struct {
	fetcher      ports.Fetcher
	media        *storage.MediaCache
	imageTimeout time.Duration
	logger       *slog.Logger
}

// NewLocalizer wires the fetch collaborator and the media cache.
func NewLocalizer(fetcher ports.Fetcher, media *storage.MediaCache, imageTimeout time.Duration, log *slog.Logger) *Localizer {
	if imageTimeout <= 0 {
		imageTimeout = 15 * time.Second
	}
	return &Localizer{fetcher: fetcher, media: media, imageTimeout: imageTimeout, logger: log}
}

// Localize downloads every referenced image into the media cache and rewrites
// src attributes to the local proxy route. The first successfully localized
// image is reported as the featured-image candidate.
func (l *Localizer) Localize(ctx context.Context, contentHTML string, source domain.Source) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	base, err := url.Parse(source.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL %s: %w", source.URL, err)
	}

	result := &Result{}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		l.localizeImage(ctx, img, base, result)
	})

	html, err := doc.Find("body").First().Html()
	if err != nil {
		return nil, fmt.Errorf("serialize content: %w", err)
	}
	result.HTML = strings.TrimSpace(html)
	return result, nil
}

func (l *Localizer) localizeImage(ctx context.Context, img *goquery.Selection, base *url.URL, result *Result) {
	src := effectiveSource(img)
	if src == "" || strings.HasPrefix(src, "data:") {
		// Inline icon or unresolvable lazy slot, not worth persisting.
		return
	}

	ref, err := url.Parse(src)
	if err != nil {
		l.recordFailure(result, src, fmt.Errorf("parse image URL: %w", err))
		return
	}
	absolute := base.ResolveReference(ref).String()

	// Without this a browser would pick a srcset variant and bypass the
	// local rewrite.
	img.RemoveAttr("srcset")
	img.RemoveAttr("sizes")

	data, contentType, err := l.fetchImage(ctx, absolute)
	if err != nil {
		l.recordFailure(result, absolute, err)
		return
	}

	name, created, err := l.media.Put(data, extensionFor(absolute, contentType))
	if err != nil {
		l.recordFailure(result, absolute, err)
		return
	}
	if l.logger != nil && created {
		l.logger.Debug("cached image", "url", absolute, "file", name)
	}

	img.SetAttr("src", MediaRoutePrefix+name)
	img.SetAttr(originalSrcAttr, absolute)

	if result.FeaturedImage == "" {
		result.FeaturedImage = name
	}
}

func (l *Localizer) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.imageTimeout)
	defer cancel()

	res, err := l.fetcher.Fetch(fetchCtx, imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetch image: status %d", res.StatusCode)
	}
	if len(res.Body) == 0 {
		return nil, "", fmt.Errorf("fetch image: empty body")
	}
	return res.Body, res.Header.Get("Content-Type"), nil
}

func (l *Localizer) recordFailure(result *Result, url string, err error) {
	if l.logger != nil {
		l.logger.Warn("image skipped", "url", url, "error", err)
	}
	result.Failures = append(result.Failures, domain.AssetFailure{URL: url, Err: err})
}

// effectiveSource prefers src, falling back to lazy-load attributes when src
// is empty, a data URI, or a known placeholder.
func effectiveSource(img *goquery.Selection) string {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src != "" && !strings.HasPrefix(src, "data:") && !isPlaceholder(src) {
		return src
	}
	for _, attr := range lazySrcAttrs {
		if lazy := strings.TrimSpace(img.AttrOr(attr, "")); lazy != "" {
			return lazy
		}
	}
	return src
}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(src)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// extensionFor derives a file extension from the URL path, falling back to
// the response Content-Type.
func extensionFor(imageURL, contentType string) string {
	if parsed, err := url.Parse(imageURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); knownImageExts[ext] {
			return ext
		}
	}
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "image/jpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			case "image/gif":
				return ".gif"
			case "image/webp":
				return ".webp"
			case "image/svg+xml":
				return ".svg"
			case "image/avif":
				return ".avif"
			}
		}
	}
	return ".bin"
}
