package sitemap

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
)

const maxSitemapBytes = 8 << 20

var lastModLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Collector fetches the sitemap shards of a source and turns them into an
// ordered, deduplicated candidate list. One bad shard never aborts the
// source; it is logged and skipped.
type Collector struct {
	client *http.Client
	logger *slog.Logger
}

var _ ports.EntryCollector = (*Collector)(nil)

// NewCollector wires an HTTP client; a nil client gets a 20s-timeout default.
func NewCollector(client *http.Client, logger *slog.Logger) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{client: client, logger: logger}
}

// Collect walks every sitemap shard of the source, filters entries by the
// source's include patterns, deduplicates by loc (first occurrence wins),
// sorts by lastmod descending with undated entries trailing in encounter
// order, and caps the result at limit.
func (c *Collector) Collect(ctx context.Context, source domain.Source, limit int) []domain.SitemapEntry {
	var combined []domain.SitemapEntry
	seen := map[string]struct{}{}

	for _, shard := range source.Sitemaps {
		entries, err := c.fetchShard(ctx, shard)
		if err != nil {
			c.logger.Warn("sitemap shard skipped", "source", source.ID, "sitemap", shard, "error", err)
			continue
		}

		for _, entry := range entries {
			if !matchesAny(entry.Loc, source.Patterns) {
				continue
			}
			if _, ok := seen[entry.Loc]; ok {
				continue
			}
			seen[entry.Loc] = struct{}{}
			entry.SourceID = source.ID
			combined = append(combined, entry)
		}
	}

	sortByLastMod(combined)

	if limit > 0 && len(combined) > limit {
		combined = combined[:limit]
	}

	c.logger.Debug("sitemap collected", "source", source.ID, "entries", len(combined))
	return combined
}

func (c *Collector) fetchShard(ctx context.Context, shardURL string) ([]domain.SitemapEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shardURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: shardURL, Err: err}
	}
	req.Header.Set("User-Agent", "mejoresnoticias/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: shardURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{URL: shardURL, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: shardURL, Err: err}
	}

	return parseShard(c.logger, shardURL, raw), nil
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type urlSet struct {
	URLs []sitemapURL `xml:"url"`
}

// parseShard turns raw XML into entries. A malformed or empty document
// yields an empty list, never an error that could fail the shard twice.
func parseShard(logger *slog.Logger, shardURL string, raw []byte) []domain.SitemapEntry {
	var set urlSet
	if err := xml.Unmarshal(raw, &set); err != nil {
		logger.Warn("sitemap parse failed", "sitemap", shardURL,
			"error", &domain.ParseError{URL: shardURL, Err: err})
		return nil
	}

	entries := make([]domain.SitemapEntry, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		entries = append(entries, domain.SitemapEntry{
			Loc:     loc,
			LastMod: parseLastMod(u.LastMod),
		})
	}
	return entries
}

func parseLastMod(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range lastModLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func matchesAny(loc string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if strings.Contains(loc, p) {
			return true
		}
	}
	return false
}

// sortByLastMod orders entries newest-first. Entries without lastmod sort
// after all dated ones; the sort is stable so encounter order survives for
// ties and undated entries.
func sortByLastMod(entries []domain.SitemapEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastMod, entries[j].LastMod
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
