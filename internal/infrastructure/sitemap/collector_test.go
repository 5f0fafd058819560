package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/logging"
)

func sitemapXML(urls ...string) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		doc += u
	}
	return doc + `</urlset>`
}

func entry(loc, lastmod string) string {
	if lastmod == "" {
		return `<url><loc>` + loc + `</loc></url>`
	}
	return `<url><loc>` + loc + `</loc><lastmod>` + lastmod + `</lastmod></url>`
}

func TestCollectDedupKeepsFirstSeen(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitemapXML(
			entry("https://site.cl/noticias/uno", "2026-08-29T10:00:00Z"),
			entry("https://site.cl/noticias/dos", "2026-08-29T09:00:00Z"),
		)))
	})
	mux.HandleFunc("/b.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitemapXML(
			entry("https://site.cl/noticias/uno", "2026-08-30T10:00:00Z"),
		)))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewCollector(server.Client(), logging.Discard())
	source := domain.Source{
		ID:       "site",
		Sitemaps: []string{server.URL + "/a.xml", server.URL + "/b.xml"},
		Patterns: []string{"/noticias/"},
	}

	entries := c.Collect(context.Background(), source, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	for _, e := range entries {
		if e.Loc == "https://site.cl/noticias/uno" {
			want := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
			if e.LastMod == nil || !e.LastMod.Equal(want) {
				t.Fatalf("dedup kept wrong record: lastmod %v", e.LastMod)
			}
		}
	}
}

func TestCollectSortStableWithMissingLastMod(t *testing.T) {
	t.Parallel()

	same := "2026-08-30T08:00:00Z"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitemapXML(
			entry("https://site.cl/noticias/sin-fecha-1", ""),
			entry("https://site.cl/noticias/viejo", "2026-08-01T08:00:00Z"),
			entry("https://site.cl/noticias/empate-a", same),
			entry("https://site.cl/noticias/sin-fecha-2", ""),
			entry("https://site.cl/noticias/empate-b", same),
		)))
	}))
	defer server.Close()

	c := NewCollector(server.Client(), logging.Discard())
	source := domain.Source{ID: "site", Sitemaps: []string{server.URL}}

	entries := c.Collect(context.Background(), source, 0)

	want := []string{
		"https://site.cl/noticias/empate-a",
		"https://site.cl/noticias/empate-b",
		"https://site.cl/noticias/viejo",
		"https://site.cl/noticias/sin-fecha-1",
		"https://site.cl/noticias/sin-fecha-2",
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, loc := range want {
		if entries[i].Loc != loc {
			t.Fatalf("position %d: expected %s, got %s", i, loc, entries[i].Loc)
		}
	}
}

func TestCollectShardFailureIsolated(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitemapXML(entry("https://site.cl/noticias/uno", ""))))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewCollector(server.Client(), logging.Discard())
	source := domain.Source{
		ID:       "site",
		Sitemaps: []string{server.URL + "/broken.xml", server.URL + "/ok.xml"},
	}

	entries := c.Collect(context.Background(), source, 0)
	if len(entries) != 1 || entries[0].Loc != "https://site.cl/noticias/uno" {
		t.Fatalf("expected the healthy shard's entry, got %v", entries)
	}
}

func TestCollectPatternFilterAndCap(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sitemapXML(
			entry("https://site.cl/noticias/uno", "2026-08-30T10:00:00Z"),
			entry("https://site.cl/deportes/dos", "2026-08-30T09:00:00Z"),
			entry("https://site.cl/noticias/tres", "2026-08-30T08:00:00Z"),
			entry("https://site.cl/noticias/cuatro", "2026-08-30T07:00:00Z"),
		)))
	}))
	defer server.Close()

	c := NewCollector(server.Client(), logging.Discard())
	source := domain.Source{
		ID:       "site",
		Sitemaps: []string{server.URL},
		Patterns: []string{"/noticias/"},
	}

	entries := c.Collect(context.Background(), source, 2)
	if len(entries) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(entries))
	}
	if entries[0].Loc != "https://site.cl/noticias/uno" || entries[1].Loc != "https://site.cl/noticias/tres" {
		t.Fatalf("unexpected capped order: %v", entries)
	}
}

func TestParseLastModLayouts(t *testing.T) {
	t.Parallel()

	accepted := []string{
		"2026-08-30T10:00:00Z",
		"2026-08-30T10:00:00-04:00",
		"2026-08-30T10:00:00",
		"2026-08-30",
	}
	for _, value := range accepted {
		if got := parseLastMod(value); got == nil {
			t.Fatalf("expected %q to parse", value)
		} else if got.Year() != 2026 || got.Month() != time.August || got.Day() != 30 {
			t.Fatalf("wrong date for %q: %v", value, got)
		}
	}

	for _, value := range []string{"", "ayer", "30-08-2026"} {
		if got := parseLastMod(value); got != nil {
			t.Fatalf("expected %q to degrade to absent, got %v", value, got)
		}
	}
}

func TestParseShardMalformed(t *testing.T) {
	t.Parallel()

	if got := parseShard(logging.Discard(), "https://x/sitemap.xml", []byte("not xml at all <<<")); len(got) != 0 {
		t.Fatalf("malformed shard should yield no entries, got %v", got)
	}
	if got := parseShard(logging.Discard(), "https://x/sitemap.xml", []byte(sitemapXML())); len(got) != 0 {
		t.Fatalf("empty shard should yield no entries, got %v", got)
	}
}
