package domain

import "time"

// Source is the static configuration of one content provider. Immutable at
// runtime; the pipeline only reads it.
type Source struct {
	ID       string
	Name     string
	Brand    string
	Sitemaps []string
	Patterns []string
	Strategy string
}

// BrandName returns the string the paywall heuristic matches against.
func (s Source) BrandName() string {
	if s.Brand != "" {
		return s.Brand
	}
	return s.Name
}

// SitemapEntry is one candidate URL discovered in a sitemap shard. Produced
// per collection pass, never persisted.
type SitemapEntry struct {
	Loc      string
	LastMod  *time.Time
	SourceID string
}

// RawArticle holds everything extracted from one article page. URL is the
// storage key; upserts refresh ScrapedAt.
type RawArticle struct {
	ID                int64
	URL               string
	SourceID          string
	Title             string
	Description       string
	ImageURL          string
	BodyText          *string
	BodyAvailable     bool
	PublishedAt       *time.Time
	ScrapedAt         time.Time
	RawStructuredData *string
}

// Category labels assigned by the analysis collaborator.
type Category string

const (
	CategoryPolitics      Category = "politics"
	CategoryCulture       Category = "culture"
	CategoryBusiness      Category = "business"
	CategoryInternational Category = "international"
	CategoryLifestyle     Category = "lifestyle"
	CategoryOpinion       Category = "opinion"
)

// Categories lists every value the analysis reply may carry.
var Categories = []Category{
	CategoryPolitics,
	CategoryCulture,
	CategoryBusiness,
	CategoryInternational,
	CategoryLifestyle,
	CategoryOpinion,
}

// Engagement is the coarse tier used as a multiplicative boost in ranking.
type Engagement string

const (
	EngagementLow    Engagement = "low"
	EngagementMedium Engagement = "medium"
	EngagementHigh   Engagement = "high"
)

// Analysis is the collaborator's verdict on one article. Exists only for
// articles whose body was available.
type Analysis struct {
	ArticleID           int64
	Category            Category
	QualityScore        int
	RelevanceScore      int
	KeyTopics           []string
	Summary             string
	EngagementPotential Engagement
	ProcessedAt         time.Time
}

// ScoredArticle pairs an article with its analysis and the computed score.
// Recomputed fresh on every ranking pass, never stored as truth.
type ScoredArticle struct {
	Article    RawArticle
	Analysis   Analysis
	FinalScore float64
}

// BundleItem is one selected article inside a daily bundle together with the
// reader-facing summary chosen for it.
type BundleItem struct {
	Article         ScoredArticle
	EnhancedSummary string
}

// DailyBundle is the output of one curation run. Immutable once appended,
// except the Published flag.
type DailyBundle struct {
	ID          int64
	Headline    string
	Items       []BundleItem
	ProcessedAt time.Time
	Published   bool
	Date        string
}
