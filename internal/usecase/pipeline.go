package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
	"github.com/kuatecno/mejoresnoticias/internal/rank"
)

// PipelineDeps wires all driven adapters into the curation pipeline.
type PipelineDeps struct {
	Sources      []domain.Source
	Collector    ports.EntryCollector
	Extractor    ports.ArticleExtractor
	Store        ports.ArticleStore
	Analyzer     ports.Analyzer
	Editor       ports.Editor
	Selector     *rank.Selector
	Logger       *slog.Logger
	GlobalLimit  int
	RecentWindow time.Duration
	FetchWorkers int
}

// RunReport carries attempted-vs-succeeded counts for one run so silent
// data loss stays observable.
type RunReport struct {
	Collected  int
	Extracted  int
	Candidates int
	Analyzed   int
	Selected   int
	BundleID   int64
}

// Pipeline orchestrates one curation run: discover, extract, persist,
// analyze, rank, write the daily bundle. Every per-item failure is isolated;
// only missing configuration aborts a run.
type Pipeline struct {
	sources      []domain.Source
	collector    ports.EntryCollector
	extractor    ports.ArticleExtractor
	store        ports.ArticleStore
	analyzer     ports.Analyzer
	editor       ports.Editor
	selector     *rank.Selector
	logger       *slog.Logger
	globalLimit  int
	recentWindow time.Duration
	fetchWorkers int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := deps.FetchWorkers
	if workers <= 0 {
		workers = 1
	}

	window := deps.RecentWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &Pipeline{
		sources:      deps.Sources,
		collector:    deps.Collector,
		extractor:    deps.Extractor,
		store:        deps.Store,
		analyzer:     deps.Analyzer,
		editor:       deps.Editor,
		selector:     deps.Selector,
		logger:       logger,
		globalLimit:  deps.GlobalLimit,
		recentWindow: window,
		fetchWorkers: workers,
	}
}

// ProcessDay executes one full curation run for the given day.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) (RunReport, error) {
	var report RunReport

	if p.store == nil {
		return report, &domain.ConfigurationError{Field: "store", Err: fmt.Errorf("not configured")}
	}
	if len(p.sources) == 0 {
		return report, &domain.ConfigurationError{Field: "sources", Err: fmt.Errorf("no sources configured")}
	}

	entries := p.collectAll(ctx)
	report.Collected = len(entries)

	report.Extracted = p.extractAll(ctx, entries)

	candidates, err := p.store.ReadRecent(ctx, p.recentWindow)
	if err != nil {
		return report, fmt.Errorf("read candidate window: %w", err)
	}
	report.Candidates = len(candidates)

	analyzed := p.analyzeAll(ctx, candidates)
	report.Analyzed = len(analyzed)

	selected := p.selector.Select(analyzed)
	report.Selected = len(selected)

	if len(selected) == 0 {
		p.logger.Warn("nothing selected, bundle skipped",
			"collected", report.Collected, "extracted", report.Extracted,
			"candidates", report.Candidates, "analyzed", report.Analyzed)
		return report, nil
	}

	bundle := domain.DailyBundle{
		Headline:    p.writeHeadline(ctx, selected),
		Items:       p.buildItems(ctx, selected),
		ProcessedAt: time.Now().UTC(),
		Published:   false,
		Date:        day.Format("2006-01-02"),
	}

	saved, err := p.store.AppendBundle(ctx, bundle)
	if err != nil {
		return report, fmt.Errorf("append bundle: %w", err)
	}
	report.BundleID = saved.ID

	p.logger.Info("curation run finished",
		"date", bundle.Date,
		"bundle_id", saved.ID,
		"collected", report.Collected,
		"extracted", report.Extracted,
		"candidates", report.Candidates,
		"analyzed", report.Analyzed,
		"selected", report.Selected)

	return report, nil
}

// collectAll fans out over sources concurrently. Each source is capped at
// ceil(globalLimit / numberOfSources).
func (p *Pipeline) collectAll(ctx context.Context) []domain.SitemapEntry {
	perSource := 0
	if p.globalLimit > 0 {
		perSource = (p.globalLimit + len(p.sources) - 1) / len(p.sources)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		entries []domain.SitemapEntry
	)

	for _, source := range p.sources {
		wg.Add(1)
		go func(src domain.Source) {
			defer wg.Done()
			collected := p.collector.Collect(ctx, src, perSource)
			mu.Lock()
			entries = append(entries, collected...)
			mu.Unlock()
		}(source)
	}
	wg.Wait()

	return entries
}

// extractAll pushes candidate URLs through a fixed worker pool. A failed
// extraction or upsert drops only that URL.
func (p *Pipeline) extractAll(ctx context.Context, entries []domain.SitemapEntry) int {
	bySource := make(map[string]domain.Source, len(p.sources))
	for _, src := range p.sources {
		bySource[src.ID] = src
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		extracted int
	)

	jobs := make(chan domain.SitemapEntry)
	for i := 0; i < p.fetchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				source, ok := bySource[entry.SourceID]
				if !ok {
					continue
				}

				article, err := p.extractor.Extract(ctx, source, entry.Loc)
				if err != nil {
					p.logger.Warn("article skipped", "url", entry.Loc, "error", err)
					continue
				}
				if article.PublishedAt == nil && entry.LastMod != nil {
					article.PublishedAt = entry.LastMod
				}

				if _, err := p.store.UpsertArticle(ctx, article); err != nil {
					p.logger.Warn("article not stored", "url", entry.Loc, "error", err)
					continue
				}

				mu.Lock()
				extracted++
				mu.Unlock()
			}
		}()
	}

	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)
	wg.Wait()

	return extracted
}

// analyzeAll runs the analysis collaborator over every candidate that has a
// body. Articles without a body are never sent; a failed call drops only
// that article from ranking.
func (p *Pipeline) analyzeAll(ctx context.Context, candidates []domain.RawArticle) []domain.ScoredArticle {
	var analyzed []domain.ScoredArticle
	for _, article := range candidates {
		if !article.BodyAvailable {
			continue
		}

		analysis, err := p.analyzer.Analyze(ctx, article)
		if err != nil {
			p.logger.Warn("analysis skipped", "url", article.URL, "error", err)
			continue
		}

		analyzed = append(analyzed, domain.ScoredArticle{
			Article:  article,
			Analysis: analysis,
		})
	}
	return analyzed
}

// buildItems attaches the reader-facing summary to each selected article,
// falling back to the stored description when the collaborator fails.
func (p *Pipeline) buildItems(ctx context.Context, selected []domain.ScoredArticle) []domain.BundleItem {
	items := make([]domain.BundleItem, 0, len(selected))
	for _, article := range selected {
		summary, err := p.editor.EnhanceSummary(ctx, article)
		if err != nil {
			p.logger.Warn("summary fallback", "url", article.Article.URL, "error", err)
			summary = article.Article.Description
		}
		items = append(items, domain.BundleItem{Article: article, EnhancedSummary: summary})
	}
	return items
}

// writeHeadline asks the collaborator for one headline; on any failure the
// top-ranked article's title is used, so headline generation can never fail
// the run.
func (p *Pipeline) writeHeadline(ctx context.Context, selected []domain.ScoredArticle) string {
	headline, err := p.editor.Headline(ctx, selected)
	if err != nil {
		p.logger.Warn("headline fallback", "error", err)
		return selected[0].Article.Title
	}
	return headline
}
