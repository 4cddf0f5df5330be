package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PageVault/internal/domain"
	"PageVault/internal/infrastructure/fetch"
	"PageVault/internal/storage"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3, 4}

func newTestLocalizer(t *testing.T, handler http.Handler) (*Localizer, *httptest.Server, string) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	mediaDir := t.TempDir()
	media, err := storage.NewMediaCache(mediaDir)
	if err != nil {
		t.Fatalf("media cache: %v", err)
	}

	client := fetch.NewClient(5*time.Second, "test-agent")
	return NewLocalizer(client, media, 5*time.Second, nil), server, mediaDir
}

func imageHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png", "/b.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	})
}

func TestLocalizeDeduplicatesIdenticalImages(t *testing.T) {
	t.Parallel()

	localizer, server, mediaDir := newTestLocalizer(t, imageHandler(t))
	src, _ := domain.NewSource(server.URL + "/post")

	html := `<article><p>text</p>
	<img src="/a.png" srcset="/a.png 1x, /a@2x.png 2x" sizes="100vw">
	<img src="` + server.URL + `/b.png">
	</article>`

	result, err := localizer.Localize(context.Background(), html, src)
	if err != nil {
		t.Fatalf("Localize error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}

	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		t.Fatalf("read media dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cached file for identical bytes, got %d", len(entries))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if !strings.HasPrefix(src, MediaRoutePrefix) {
			t.Fatalf("img not rewritten: %s", src)
		}
		if _, ok := img.Attr("srcset"); ok {
			t.Fatalf("srcset survived rewrite")
		}
		if _, ok := img.Attr("sizes"); ok {
			t.Fatalf("sizes survived rewrite")
		}
		if orig, _ := img.Attr("data-original-src"); !strings.HasPrefix(orig, "http") {
			t.Fatalf("missing provenance attribute: %q", orig)
		}
	})

	if result.FeaturedImage == "" || !strings.Contains(result.HTML, result.FeaturedImage) {
		t.Fatalf("featured candidate not set from first localized image: %q", result.FeaturedImage)
	}
}

func TestLocalizeLazyLoadFallback(t *testing.T) {
	t.Parallel()

	localizer, server, _ := newTestLocalizer(t, imageHandler(t))
	src, _ := domain.NewSource(server.URL + "/post")

	html := `<div><img src="data:image/gif;base64,R0lGOD" data-src="/a.png"></div>`
	result, err := localizer.Localize(context.Background(), html, src)
	if err != nil {
		t.Fatalf("Localize error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}
	if !strings.Contains(result.HTML, MediaRoutePrefix) {
		t.Fatalf("lazy image not localized: %s", result.HTML)
	}
}

func TestLocalizeSkipsDataURIs(t *testing.T) {
	t.Parallel()

	localizer, server, mediaDir := newTestLocalizer(t, imageHandler(t))
	src, _ := domain.NewSource(server.URL + "/post")

	html := `<div><img src="data:image/gif;base64,R0lGOD"></div>`
	result, err := localizer.Localize(context.Background(), html, src)
	if err != nil {
		t.Fatalf("Localize error: %v", err)
	}
	if strings.Contains(result.HTML, MediaRoutePrefix) {
		t.Fatalf("data URI was localized: %s", result.HTML)
	}
	entries, _ := os.ReadDir(mediaDir)
	if len(entries) != 0 {
		t.Fatalf("cache not empty: %d entries", len(entries))
	}
}

func TestLocalizeBrokenImageIsSoft(t *testing.T) {
	t.Parallel()

	localizer, server, _ := newTestLocalizer(t, imageHandler(t))
	src, _ := domain.NewSource(server.URL + "/post")

	html := `<article>
	<img src="/missing.png">
	<img src="/a.png">
	</article>`

	result, err := localizer.Localize(context.Background(), html, src)
	if err != nil {
		t.Fatalf("one broken image failed the whole localization: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 soft failure, got %d", len(result.Failures))
	}
	if !strings.Contains(result.HTML, MediaRoutePrefix) {
		t.Fatalf("healthy image not localized: %s", result.HTML)
	}
	if result.FeaturedImage == "" {
		t.Fatalf("featured candidate missing despite one success")
	}
}
