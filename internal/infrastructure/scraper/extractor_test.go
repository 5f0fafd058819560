package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/extract"
	"github.com/kuatecno/mejoresnoticias/internal/logging"
)

func testRegistry() *extract.Registry {
	r := extract.NewRegistry()
	r.Register(extract.Strategy{
		Name:          "test",
		BodySelectors: []string{"div.missing", "div.cuerpo"},
	})
	return r
}

func longParagraph(n int) string {
	return strings.Repeat("palabra ", n/8+1)[:n]
}

func serve(t *testing.T, html string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
}

func TestExtractStructuredDataWinsOverMeta(t *testing.T) {
	t.Parallel()

	body := longParagraph(600)
	html := `<html><head>
	<title>Page Title</title>
	<meta property="og:title" content="OG Title"/>
	<meta property="og:image" content="https://site.cl/og.jpg"/>
	<script type="application/ld+json">{not valid json</script>
	<script type="application/ld+json">{
	  "@context": "https://schema.org",
	  "@graph": [
	    {"@type": "Organization", "name": "Site"},
	    {"@type": ["NewsArticle"], "headline": "Structured Headline",
	     "description": "Structured description",
	     "image": {"@type": "ImageObject", "url": "https://site.cl/ld.jpg"},
	     "datePublished": "2026-08-30T09:30:00Z"}
	  ]
	}</script>
	</head><body><div class="cuerpo"><p>` + body + `</p></div></body></html>`

	server := serve(t, html)
	defer server.Close()

	e := NewExtractor(server.Client(), testRegistry(), logging.Discard())
	source := domain.Source{ID: "site", Name: "Site", Strategy: "test"}

	article, err := e.Extract(context.Background(), source, server.URL+"/noticias/uno")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if article.Title != "Structured Headline" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if article.Description != "Structured description" {
		t.Fatalf("unexpected description: %s", article.Description)
	}
	if article.ImageURL != "https://site.cl/ld.jpg" {
		t.Fatalf("unexpected image: %s", article.ImageURL)
	}
	want := time.Date(2026, time.August, 30, 9, 30, 0, 0, time.UTC)
	if article.PublishedAt == nil || !article.PublishedAt.Equal(want) {
		t.Fatalf("unexpected publishedAt: %v", article.PublishedAt)
	}
	if article.RawStructuredData == nil || !strings.Contains(*article.RawStructuredData, "Structured Headline") {
		t.Fatal("raw structured data not kept")
	}
	if !article.BodyAvailable || article.BodyText == nil {
		t.Fatal("body should be available")
	}
}

func TestExtractMetaFallbackChain(t *testing.T) {
	t.Parallel()

	html := `<html><head>
	<title>Plain Page Title</title>
	<meta name="twitter:title" content="Twitter Title"/>
	<meta name="description" content="Generic description"/>
	<meta name="twitter:image" content="https://site.cl/tw.jpg"/>
	</head><body></body></html>`

	server := serve(t, html)
	defer server.Close()

	e := NewExtractor(server.Client(), testRegistry(), logging.Discard())
	source := domain.Source{ID: "site", Name: "Site", Strategy: "test"}

	article, err := e.Extract(context.Background(), source, server.URL)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if article.Title != "Twitter Title" {
		t.Fatalf("expected twitter title fallback, got %s", article.Title)
	}
	if article.Description != "Generic description" {
		t.Fatalf("unexpected description: %s", article.Description)
	}
	if article.ImageURL != "https://site.cl/tw.jpg" {
		t.Fatalf("unexpected image: %s", article.ImageURL)
	}
	if article.BodyAvailable {
		t.Fatal("no body markup should mean unavailable body")
	}
	if article.PublishedAt != nil {
		t.Fatalf("expected absent publishedAt, got %v", article.PublishedAt)
	}
}

func TestExtractFetchErrorOnBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewExtractor(server.Client(), testRegistry(), logging.Discard())
	source := domain.Source{ID: "site", Strategy: "test"}

	_, err := e.Extract(context.Background(), source, server.URL+"/gone")
	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Status != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", fetchErr.Status)
	}
}

func TestFindArticleNodeFirstMatchWins(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head>
	<script type="application/ld+json">[{"@type": "WebPage"}, {"@type": "Article", "headline": "First"}]</script>
	<script type="application/ld+json">{"@type": "NewsArticle", "headline": "Second"}</script>
	</head></html>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	node, raw := findArticleNode(parseStructuredBlocks(doc))
	if node == nil {
		t.Fatal("expected a match")
	}
	if nodeString(node, "headline") != "First" {
		t.Fatalf("expected first encountered article node, got %s", nodeString(node, "headline"))
	}
	if !strings.Contains(raw, "First") {
		t.Fatal("raw block does not match the selected node")
	}
}

func TestExtractBodySelectorFallbackAndNormalization(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<div class="corto"><p>muy corto</p></div>
	<div class="cuerpo">
	  <p>Primera   frase
	  con	saltos.</p>
	  <p></p>
	  <p>` + longParagraph(150) + `</p>
	</div>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	strategy := extract.Strategy{BodySelectors: []string{"div.corto", "div.cuerpo"}}
	body := extractBody(doc, strategy)

	if !strings.HasPrefix(body, "Primera frase con saltos.\n\n") {
		t.Fatalf("whitespace not normalized: %q", body[:40])
	}
	if strings.Contains(body, "\n\n\n") {
		t.Fatal("multiple blank lines survived")
	}
	if strings.Contains(body, "muy corto") {
		t.Fatal("short selector should have been rejected")
	}
}

func TestResolveBodyPaywallTeaser(t *testing.T) {
	t.Parallel()

	teaser := "Subscribe to La Tercera to keep reading this exclusive story. " + longParagraph(250)
	if len([]rune(teaser)) >= 500 {
		t.Fatal("fixture must stay under 500 runes")
	}

	text, available := resolveBody(teaser, "La Tercera")
	if available || text != nil {
		t.Fatal("teaser should be flagged unavailable and nulled")
	}

	// Same length without the brand mention stays available.
	neutral := "Subscribe buttons exist everywhere on the web these days. " + longParagraph(250)
	if _, ok := resolveBody(neutral, "La Tercera"); !ok {
		t.Fatal("text without the brand name should stay available")
	}
}

func TestResolveBodyNoBrandConfigured(t *testing.T) {
	t.Parallel()

	// Without a brand the co-occurrence rule cannot match; a marker word
	// alone must not flag the body.
	short := "Subscribe prompts appear in many footers. " + longParagraph(260)
	if len([]rune(short)) >= 500 {
		t.Fatal("fixture must stay under 500 runes")
	}

	text, ok := resolveBody(short, "")
	if !ok || text == nil {
		t.Fatal("marker without a brand should leave the body available")
	}
}

func TestResolveBodyLengthRules(t *testing.T) {
	t.Parallel()

	if _, ok := resolveBody(longParagraph(200), "Site"); ok {
		t.Fatal("text at or under 200 runes should be unavailable")
	}

	full := longParagraph(1000)
	text, ok := resolveBody(full, "Site")
	if !ok || text == nil || *text != full {
		t.Fatal("ordinary long text should be kept")
	}
}
