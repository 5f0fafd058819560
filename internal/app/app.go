package app

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/kuatecno/mejoresnoticias/internal/config"
	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/extract"
	"github.com/kuatecno/mejoresnoticias/internal/infrastructure/llm"
	"github.com/kuatecno/mejoresnoticias/internal/infrastructure/scheduler"
	"github.com/kuatecno/mejoresnoticias/internal/infrastructure/scraper"
	"github.com/kuatecno/mejoresnoticias/internal/infrastructure/sitemap"
	"github.com/kuatecno/mejoresnoticias/internal/infrastructure/storage"
	"github.com/kuatecno/mejoresnoticias/internal/logging"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
	"github.com/kuatecno/mejoresnoticias/internal/rank"
	"github.com/kuatecno/mejoresnoticias/internal/usecase"
)

// Application wires configuration to the pipeline and its lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler ports.Scheduler
	db        *sql.DB
}

// New builds a runnable application. The only fatal path is unreachable
// storage; everything downstream degrades per item.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(db, storage.NewCache(ctx, cfg.Redis.Addr), baseLogger.With("component", "store"))
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	strategies := extract.Defaults()
	sources := buildSources(cfg.Sources, strategies)

	client := llm.NewClient(cfg.OpenAI)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:      sources,
		Collector:    sitemap.NewCollector(nil, baseLogger.With("component", "sitemap")),
		Extractor:    scraper.NewExtractor(nil, strategies, baseLogger.With("component", "scraper")),
		Store:        store,
		Analyzer:     client,
		Editor:       client,
		Selector:     rank.NewSelector(cfg.Curation.CategoryWeights, cfg.Curation.TopK),
		Logger:       baseLogger.With("component", "pipeline"),
		GlobalLimit:  cfg.Curation.GlobalLimit,
		RecentWindow: cfg.Curation.RecentWindow(),
		FetchWorkers: cfg.Curation.FetchWorkers,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pipeline:  pipeline,
		scheduler: scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location()),
		db:        db,
	}, nil
}

// Run executes one immediate curation run, or follows the cron schedule
// when one is configured, until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.db.Close()

	if a.cfg.Scheduler.CronExpression == "" {
		_, err := a.pipeline.ProcessDay(ctx, time.Now().In(a.cfg.Scheduler.Location()))
		return err
	}

	job := func(trigger time.Time) {
		if _, err := a.pipeline.ProcessDay(ctx, trigger); err != nil {
			a.logger.Error("curation run failed", "error", err)
		}
	}

	if err := a.scheduler.Start(ctx, job); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// buildSources converts source configs into domain sources. A source with
// inline selectors gets an ad-hoc strategy registered under its own id.
func buildSources(configs []config.SourceConfig, strategies *extract.Registry) []domain.Source {
	sources := make([]domain.Source, 0, len(configs))
	for _, sc := range configs {
		strategy := sc.Strategy
		if len(sc.Selectors) > 0 {
			strategies.Register(extract.Strategy{Name: sc.ID, BodySelectors: sc.Selectors})
			strategy = sc.ID
		}
		if strategy == "" {
			strategy = "generic"
		}

		sources = append(sources, domain.Source{
			ID:       sc.ID,
			Name:     sc.Name,
			Brand:    sc.Brand,
			Sitemaps: sc.Sitemaps,
			Patterns: sc.Patterns,
			Strategy: strategy,
		})
	}
	return sources
}
