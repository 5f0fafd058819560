package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
)

// Store persists articles and bundles in Postgres. A Redis client, when
// present, caches the latest bundle; without one every read hits the DB.
type Store struct {
	db      *sql.DB
	cache   *redis.Client
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.ArticleStore = (*Store)(nil)

// NewStore wires the database handle and the optional cache.
func NewStore(db *sql.DB, cache *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		cache:   cache,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}
}

// Open connects to Postgres and verifies reachability. An unreachable
// database is the fatal configuration case, detected before any stage runs.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "database.dsn", Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &domain.ConfigurationError{Field: "database.dsn", Err: err}
	}

	return db, nil
}

// EnsureSchema creates the tables on first run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			source_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			body_text TEXT,
			body_available BOOLEAN NOT NULL DEFAULT FALSE,
			published_at TIMESTAMPTZ,
			scraped_at TIMESTAMPTZ NOT NULL,
			raw_structured_data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_scraped_at ON articles (scraped_at)`,
		`CREATE TABLE IF NOT EXISTS bundles (
			id BIGSERIAL PRIMARY KEY,
			headline TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			bundle_date TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bundle_items (
			bundle_id BIGINT NOT NULL REFERENCES bundles(id),
			position INT NOT NULL,
			article_id BIGINT NOT NULL REFERENCES articles(id),
			final_score DOUBLE PRECISION NOT NULL,
			category TEXT NOT NULL,
			quality_score INT NOT NULL,
			relevance_score INT NOT NULL,
			key_topics TEXT[] NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			engagement TEXT NOT NULL,
			enhanced_summary TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (bundle_id, position)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &domain.ConfigurationError{Field: "database.schema", Err: err}
		}
	}
	return nil
}

// UpsertArticle inserts or refreshes one article keyed by url. Idempotent;
// conflicting writes resolve last-write-wins on scraped_at.
func (s *Store) UpsertArticle(ctx context.Context, article domain.RawArticle) (domain.RawArticle, error) {
	query := s.builder.
		Insert("articles").
		Columns("url", "source_id", "title", "description", "image_url",
			"body_text", "body_available", "published_at", "scraped_at", "raw_structured_data").
		Values(article.URL, article.SourceID, article.Title, article.Description, article.ImageURL,
			article.BodyText, article.BodyAvailable, article.PublishedAt, article.ScrapedAt, article.RawStructuredData).
		Suffix(`ON CONFLICT (url) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			body_text = EXCLUDED.body_text,
			body_available = EXCLUDED.body_available,
			published_at = EXCLUDED.published_at,
			scraped_at = EXCLUDED.scraped_at,
			raw_structured_data = EXCLUDED.raw_structured_data
			RETURNING id`)

	sqlText, args, err := query.ToSql()
	if err != nil {
		return domain.RawArticle{}, fmt.Errorf("build upsert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&article.ID); err != nil {
		return domain.RawArticle{}, fmt.Errorf("upsert article %s: %w", article.URL, err)
	}

	return article, nil
}

// ReadRecent returns articles scraped within the window, newest first.
func (s *Store) ReadRecent(ctx context.Context, window time.Duration) ([]domain.RawArticle, error) {
	query := s.builder.
		Select("id", "url", "source_id", "title", "description", "image_url",
			"body_text", "body_available", "published_at", "scraped_at", "raw_structured_data").
		From("articles").
		Where(sq.GtOrEq{"scraped_at": time.Now().UTC().Add(-window)}).
		OrderBy("scraped_at DESC")

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build read recent: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	defer rows.Close()

	var articles []domain.RawArticle
	for rows.Next() {
		var a domain.RawArticle
		if err := rows.Scan(&a.ID, &a.URL, &a.SourceID, &a.Title, &a.Description, &a.ImageURL,
			&a.BodyText, &a.BodyAvailable, &a.PublishedAt, &a.ScrapedAt, &a.RawStructuredData); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return articles, nil
}

// AppendBundle persists one new bundle and its items in a transaction and
// invalidates the latest-bundle cache.
func (s *Store) AppendBundle(ctx context.Context, bundle domain.DailyBundle) (domain.DailyBundle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DailyBundle{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insertBundle := s.builder.
		Insert("bundles").
		Columns("headline", "processed_at", "published", "bundle_date").
		Values(bundle.Headline, bundle.ProcessedAt, bundle.Published, bundle.Date).
		Suffix("RETURNING id")

	sqlText, args, err := insertBundle.ToSql()
	if err != nil {
		return domain.DailyBundle{}, fmt.Errorf("build bundle insert: %w", err)
	}
	if err := tx.QueryRowContext(ctx, sqlText, args...).Scan(&bundle.ID); err != nil {
		return domain.DailyBundle{}, fmt.Errorf("insert bundle: %w", err)
	}

	for position, item := range bundle.Items {
		insertItem := s.builder.
			Insert("bundle_items").
			Columns("bundle_id", "position", "article_id", "final_score", "category",
				"quality_score", "relevance_score", "key_topics", "summary", "engagement", "enhanced_summary").
			Values(bundle.ID, position, item.Article.Article.ID, item.Article.FinalScore,
				string(item.Article.Analysis.Category), item.Article.Analysis.QualityScore,
				item.Article.Analysis.RelevanceScore, pq.Array(item.Article.Analysis.KeyTopics),
				item.Article.Analysis.Summary, string(item.Article.Analysis.EngagementPotential),
				item.EnhancedSummary)

		sqlText, args, err := insertItem.ToSql()
		if err != nil {
			return domain.DailyBundle{}, fmt.Errorf("build item insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
			return domain.DailyBundle{}, fmt.Errorf("insert bundle item %d: %w", position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.DailyBundle{}, fmt.Errorf("commit bundle: %w", err)
	}

	s.invalidateLatest(ctx)
	return bundle, nil
}

// publishBundleQuery updates the publish flag and nothing else; bundle rows
// are otherwise immutable.
func (s *Store) publishBundleQuery(bundleID int64) sq.UpdateBuilder {
	return s.builder.
		Update("bundles").
		Set("published", true).
		Where(sq.Eq{"id": bundleID})
}

// MarkBundlePublished flips the publish flag; the only mutation a persisted
// bundle allows.
func (s *Store) MarkBundlePublished(ctx context.Context, bundleID int64) error {
	sqlText, args, err := s.publishBundleQuery(bundleID).ToSql()
	if err != nil {
		return fmt.Errorf("build publish update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("publish bundle %d: %w", bundleID, err)
	}

	s.invalidateLatest(ctx)
	return nil
}

// ReadLatestBundle returns the most recent bundle with its items, or nil
// when none exists yet. Served from cache when possible.
func (s *Store) ReadLatestBundle(ctx context.Context) (*domain.DailyBundle, error) {
	if cached := s.readCachedLatest(ctx); cached != nil {
		return cached, nil
	}

	sqlText, args, err := s.builder.
		Select("id", "headline", "processed_at", "published", "bundle_date").
		From("bundles").
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest bundle: %w", err)
	}

	var bundle domain.DailyBundle
	err = s.db.QueryRowContext(ctx, sqlText, args...).
		Scan(&bundle.ID, &bundle.Headline, &bundle.ProcessedAt, &bundle.Published, &bundle.Date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest bundle: %w", err)
	}

	items, err := s.readBundleItems(ctx, bundle.ID)
	if err != nil {
		return nil, err
	}
	bundle.Items = items

	s.writeCachedLatest(ctx, &bundle)
	return &bundle, nil
}

func (s *Store) readBundleItems(ctx context.Context, bundleID int64) ([]domain.BundleItem, error) {
	sqlText, args, err := s.builder.
		Select("a.id", "a.url", "a.source_id", "a.title", "a.description", "a.image_url",
			"a.body_text", "a.body_available", "a.published_at", "a.scraped_at", "a.raw_structured_data",
			"i.final_score", "i.category", "i.quality_score", "i.relevance_score",
			"i.key_topics", "i.summary", "i.engagement", "i.enhanced_summary").
		From("bundle_items i").
		Join("articles a ON a.id = i.article_id").
		Where(sq.Eq{"i.bundle_id": bundleID}).
		OrderBy("i.position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bundle items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("read bundle items: %w", err)
	}
	defer rows.Close()

	var items []domain.BundleItem
	for rows.Next() {
		var item domain.BundleItem
		a := &item.Article.Article
		an := &item.Article.Analysis
		var topics pq.StringArray
		if err := rows.Scan(&a.ID, &a.URL, &a.SourceID, &a.Title, &a.Description, &a.ImageURL,
			&a.BodyText, &a.BodyAvailable, &a.PublishedAt, &a.ScrapedAt, &a.RawStructuredData,
			&item.Article.FinalScore, &an.Category, &an.QualityScore, &an.RelevanceScore,
			&topics, &an.Summary, &an.EngagementPotential, &item.EnhancedSummary); err != nil {
			return nil, fmt.Errorf("scan bundle item: %w", err)
		}
		an.ArticleID = a.ID
		an.KeyTopics = topics
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return items, nil
}
