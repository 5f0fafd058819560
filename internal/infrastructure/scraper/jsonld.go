package scraper

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Structured-data types accepted as "this page is an article".
var articleTypes = map[string]bool{
	"Article":              true,
	"NewsArticle":          true,
	"ReportageNewsArticle": true,
	"BlogPosting":          true,
}

// structuredBlock is one embedded ld+json script that decoded successfully,
// kept alongside its raw text for persistence.
type structuredBlock struct {
	raw  string
	root any
}

// parseStructuredBlocks decodes every ld+json block on the page
// independently; a block that fails to parse is dropped, not fatal.
func parseStructuredBlocks(doc *goquery.Document) []structuredBlock {
	var blocks []structuredBlock
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var root any
		if err := json.Unmarshal([]byte(raw), &root); err != nil {
			return
		}
		blocks = append(blocks, structuredBlock{raw: raw, root: root})
	})
	return blocks
}

// findArticleNode searches the parsed blocks depth-first for the first node
// declaring a recognized article type. The walker has one explicit case per
// shape a block can take: a bare object, a list of objects, or an object
// carrying a @graph collection. First match in encounter order wins.
func findArticleNode(blocks []structuredBlock) (map[string]any, string) {
	for _, block := range blocks {
		if node := walkNode(block.root); node != nil {
			return node, block.raw
		}
	}
	return nil, ""
}

func walkNode(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if m := walkNode(item); m != nil {
				return m
			}
		}
	case map[string]any:
		if isArticleType(node["@type"]) {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return walkNode(graph)
		}
	}
	return nil
}

// isArticleType handles both declared-type shapes: a single string and a
// list of strings.
func isArticleType(v any) bool {
	switch t := v.(type) {
	case string:
		return articleTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && articleTypes[s] {
				return true
			}
		}
	}
	return false
}

func nodeString(node map[string]any, key string) string {
	if node == nil {
		return ""
	}
	if s, ok := node[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// nodeImage resolves the image field's three common shapes: a plain URL
// string, an ImageObject with a url key, or a list of either.
func nodeImage(node map[string]any) string {
	if node == nil {
		return ""
	}
	return imageValue(node["image"])
}

func imageValue(v any) string {
	switch img := v.(type) {
	case string:
		return strings.TrimSpace(img)
	case map[string]any:
		if s, ok := img["url"].(string); ok {
			return strings.TrimSpace(s)
		}
	case []any:
		for _, item := range img {
			if s := imageValue(item); s != "" {
				return s
			}
		}
	}
	return ""
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublished(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
