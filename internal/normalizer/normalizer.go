package normalizer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"PageVault/internal/domain"
)

const (
	defaultTitle = "Untitled"

	// Elements matching a noise keyword survive when they carry this much of
	// their own text, unless the keyword is high-confidence. Long-form content
	// wrapped in a stylistic class name must not be deleted.
	noiseTextThreshold = 300

	minWords      = 100
	minParagraphs = 2
)

// structuralNoise is removed outright: never content, always clutter.
const structuralNoise = "script, style, noscript, nav, header, footer, form, iframe, object, embed, aside"

// noiseKeywords flag elements by class/id substring.
var noiseKeywords = []string{
	"share", "social", "comment", "advert", "banner", "cookie",
	"widget", "sidebar", "related", "promo", "sponsor",
	"newsletter", "subscribe", "popup", "outbrain", "taboola",
}

// highConfidence keywords are removed regardless of text length.
var highConfidence = map[string]bool{
	"comment":  true,
	"outbrain": true,
	"taboola":  true,
	"cookie":   true,
}

// candidateSelectors cover common content container conventions, checked in
// addition to the semantic article/main elements.
var candidateSelectors = []string{
	"#content", ".content", "#main-content", ".main-content",
	".entry-content", ".post-content", ".post-body",
	".article-content", ".article-body", ".story-body", ".post",
}

// Normalizer extracts the single best main-content region from raw HTML and
// enforces the minimum-viability gate.
type Normalizer struct {
	logger *slog.Logger
}

// New builds a content normalizer.
func New(log *slog.Logger) *Normalizer {
	return &Normalizer{logger: log}
}

// Normalize parses rawHTML permissively, strips boilerplate, selects the best
// content node, and returns its serialized HTML with page metadata. Content
// below 100 words or 2 paragraphs fails with domain.ErrInsufficientContent
// before anything is stored.
func (n *Normalizer) Normalize(rawHTML string) (*domain.Extract, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = defaultTitle
	}

	// Metadata lives in head sections that noise stripping may touch, so
	// collect it first.
	meta := extractMeta(doc)

	doc.Find(structuralNoise).Remove()
	removeNoiseByKeyword(doc)

	best := selectBestNode(doc)
	if best == nil || best.Length() == 0 {
		best = doc.Find("body").First()
	}

	words := countWords(best.Text())
	paragraphs := countParagraphs(best)
	if words < minWords || paragraphs < minParagraphs {
		return nil, fmt.Errorf("%w: %d words, %d paragraphs", domain.ErrInsufficientContent, words, paragraphs)
	}

	content, err := goquery.OuterHtml(best)
	if err != nil {
		return nil, fmt.Errorf("serialize content: %w", err)
	}

	if n.logger != nil {
		n.logger.Debug("normalized content", "title", title, "words", words, "paragraphs", paragraphs)
	}

	return &domain.Extract{
		Title:   title,
		Content: strings.TrimSpace(content),
		Meta:    meta,
	}, nil
}

// removeNoiseByKeyword drops elements whose class or id matches the noise set,
// sparing long-form elements unless the match is high-confidence.
func removeNoiseByKeyword(doc *goquery.Document) {
	doc.Find("[class], [id]").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		attrs := strings.ToLower(class + " " + id)

		for _, keyword := range noiseKeywords {
			if !strings.Contains(attrs, keyword) {
				continue
			}
			if !highConfidence[keyword] && len(strings.TrimSpace(sel.Text())) > noiseTextThreshold {
				continue
			}
			sel.Remove()
			return
		}
	})
}

// selectBestNode returns the candidate with the greatest stripped-text
// length, or nil when no candidate matches.
func selectBestNode(doc *goquery.Document) *goquery.Selection {
	var candidates []*goquery.Selection

	doc.Find("article, main").Each(func(_ int, sel *goquery.Selection) {
		candidates = append(candidates, sel)
	})
	for _, selector := range candidateSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			candidates = append(candidates, sel)
		})
	}

	var best *goquery.Selection
	bestLen := -1
	for _, cand := range candidates {
		textLen := len(strings.TrimSpace(cand.Text()))
		if textLen > bestLen {
			best = cand
			bestLen = textLen
		}
	}
	return best
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// countParagraphs counts non-empty <p> elements inside node. The node itself
// counts when it is a paragraph carrying text.
func countParagraphs(node *goquery.Selection) int {
	count := 0
	node.Find("p").Each(func(_ int, p *goquery.Selection) {
		if strings.TrimSpace(p.Text()) != "" {
			count++
		}
	})
	if count == 0 && node.Is("p") && strings.TrimSpace(node.Text()) != "" {
		count = 1
	}
	return count
}

// extractMeta pulls auxiliary metadata via simple attribute lookups.
func extractMeta(doc *goquery.Document) domain.PageMeta {
	meta := domain.PageMeta{
		Author:      metaContent(doc, `meta[name="author"]`, `meta[property="article:author"]`),
		Description: metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`),
		Published:   metaContent(doc, `meta[property="article:published_time"]`, `meta[name="date"]`),
		Image:       metaContent(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`),
	}
	if meta.Published == "" {
		if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			meta.Published = strings.TrimSpace(dt)
		}
	}
	return meta
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
