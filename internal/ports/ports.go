package ports

import (
	"context"
	"time"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
)

// EntryCollector discovers candidate article URLs for one source, already
// filtered, deduplicated, ordered, and capped.
type EntryCollector interface {
	Collect(ctx context.Context, source domain.Source, limit int) []domain.SitemapEntry
}

// ArticleExtractor fetches one page and resolves its normalized fields via
// the source's extraction strategy.
type ArticleExtractor interface {
	Extract(ctx context.Context, source domain.Source, url string) (domain.RawArticle, error)
}

// ArticleStore is the content-store contract. Upsert is keyed by url and
// idempotent; conflicting writes resolve last-write-wins on scrapedAt.
type ArticleStore interface {
	UpsertArticle(ctx context.Context, article domain.RawArticle) (domain.RawArticle, error)
	ReadRecent(ctx context.Context, window time.Duration) ([]domain.RawArticle, error)
	AppendBundle(ctx context.Context, bundle domain.DailyBundle) (domain.DailyBundle, error)
	ReadLatestBundle(ctx context.Context) (*domain.DailyBundle, error)
	MarkBundlePublished(ctx context.Context, bundleID int64) error
}

// Analyzer scores and categorizes one article through the text-analysis
// collaborator. Only called for articles with an available body.
type Analyzer interface {
	Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error)
}

// Editor produces reader-facing text through the generation collaborator.
// Both calls are recoverable; callers fall back deterministically.
type Editor interface {
	Headline(ctx context.Context, ranked []domain.ScoredArticle) (string, error)
	EnhanceSummary(ctx context.Context, article domain.ScoredArticle) (string, error)
}

// Scheduler controls when curation runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
