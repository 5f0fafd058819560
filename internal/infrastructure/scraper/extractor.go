package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/extract"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
)

const (
	minBodyRunes    = 100
	teaserMaxRunes  = 200
	shortArticleMax = 500
)

// Markers that, together with the source's brand name, flag a truncated
// subscription teaser rather than full content.
var subscriptionMarkers = []string{
	"subscribe",
	"suscríbete",
	"suscribete",
	"suscripción",
	"suscripcion",
	"suscriptores",
}

var innerSpace = regexp.MustCompile(`\s+`)

// Extractor fetches one article page and resolves its normalized fields via
// layered fallback: structured data, then meta tags, then absent. Body text
// comes from the source strategy's selectors.
type Extractor struct {
	client     *http.Client
	strategies *extract.Registry
	logger     *slog.Logger
}

var _ ports.ArticleExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client and the strategy registry.
func NewExtractor(client *http.Client, strategies *extract.Registry, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, strategies: strategies, logger: logger}
}

// Extract fetches the page and builds a RawArticle. Errors are scoped to
// this URL only; the caller skips it and continues the batch.
func (e *Extractor) Extract(ctx context.Context, source domain.Source, pageURL string) (domain.RawArticle, error) {
	strategy, err := e.strategies.Resolve(source.Strategy)
	if err != nil {
		return domain.RawArticle{}, fmt.Errorf("source %s: %w", source.ID, err)
	}

	doc, err := e.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.RawArticle{}, err
	}

	article := domain.RawArticle{
		URL:       pageURL,
		SourceID:  source.ID,
		ScrapedAt: time.Now().UTC(),
	}

	blocks := parseStructuredBlocks(doc)
	node, raw := findArticleNode(blocks)
	if raw != "" {
		article.RawStructuredData = &raw
	}

	article.Title = firstNonEmpty(
		nodeString(node, "headline"),
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	article.Description = firstNonEmpty(
		nodeString(node, "description"),
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	article.ImageURL = firstNonEmpty(
		nodeImage(node),
		metaContent(doc, `meta[property="og:image"]`),
		metaContent(doc, `meta[name="twitter:image"]`),
	)
	article.PublishedAt = parsePublished(firstNonEmpty(
		nodeString(node, "datePublished"),
		metaContent(doc, `meta[property="article:published_time"]`),
	))

	body := extractBody(doc, strategy)
	article.BodyText, article.BodyAvailable = resolveBody(body, source.BrandName())

	return article, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", "mejoresnoticias/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{URL: pageURL, Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.ParseError{URL: pageURL, Err: err}
	}

	return doc, nil
}

// extractBody tries each strategy selector in order and accepts the first
// whose concatenated paragraph text exceeds the minimum. Paragraphs join
// with a blank line; whitespace inside each paragraph collapses to single
// spaces, so no multiple blank lines survive.
func extractBody(doc *goquery.Document, strategy extract.Strategy) string {
	for _, selector := range strategy.BodySelectors {
		var paragraphs []string
		doc.Find(selector).Find("p").Each(func(_ int, p *goquery.Selection) {
			text := innerSpace.ReplaceAllString(strings.TrimSpace(p.Text()), " ")
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
		})

		body := strings.Join(paragraphs, "\n\n")
		if len([]rune(body)) > minBodyRunes {
			return body
		}
	}
	return ""
}

// resolveBody applies the availability rule: text at or under 200 runes is
// never a body, and short text mentioning both a subscription prompt and
// the source's brand is a paywall teaser. Unavailable bodies are nulled.
func resolveBody(body, brand string) (*string, bool) {
	length := len([]rune(body))
	if length <= teaserMaxRunes {
		return nil, false
	}

	if length < shortArticleMax && brand != "" {
		lower := strings.ToLower(body)
		if containsMarker(lower) && strings.Contains(lower, strings.ToLower(brand)) {
			return nil, false
		}
	}

	return &body, true
}

func containsMarker(lowerBody string) bool {
	for _, marker := range subscriptionMarkers {
		if strings.Contains(lowerBody, marker) {
			return true
		}
	}
	return false
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
