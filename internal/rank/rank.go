package rank

import (
	"sort"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
)

const (
	// Weight applied when the analysis category is not in the table.
	fallbackCategoryWeight = 0.1

	defaultTopK = 10
)

var defaultCategoryWeights = map[domain.Category]float64{
	domain.CategoryPolitics:      0.25,
	domain.CategoryCulture:       0.20,
	domain.CategoryBusiness:      0.20,
	domain.CategoryInternational: 0.15,
	domain.CategoryLifestyle:     0.10,
	domain.CategoryOpinion:       0.10,
}

// Selector computes final scores and keeps the top-K. Scoring is a pure
// function of the analysis, so re-ranking the same input always reproduces
// the same output.
type Selector struct {
	weights map[domain.Category]float64
	topK    int
}

// NewSelector merges configured category-weight overrides over the fixed
// table. topK <= 0 falls back to the default of 10.
func NewSelector(overrides map[string]float64, topK int) *Selector {
	weights := make(map[domain.Category]float64, len(defaultCategoryWeights))
	for cat, w := range defaultCategoryWeights {
		weights[cat] = w
	}
	for cat, w := range overrides {
		weights[domain.Category(cat)] = w
	}

	if topK <= 0 {
		topK = defaultTopK
	}

	return &Selector{weights: weights, topK: topK}
}

// Score computes the final score for one analysis.
func (s *Selector) Score(a domain.Analysis) float64 {
	categoryWeight, ok := s.weights[a.Category]
	if !ok {
		categoryWeight = fallbackCategoryWeight
	}

	qualityWeight := float64(a.QualityScore) / 10
	relevanceWeight := float64(a.RelevanceScore) / 10

	boost := 1.0
	switch a.EngagementPotential {
	case domain.EngagementHigh:
		boost = 1.2
	case domain.EngagementMedium:
		boost = 1.1
	}

	return (0.3*categoryWeight + 0.4*qualityWeight + 0.3*relevanceWeight) * boost
}

// Select scores every pair, sorts descending by final score with a stable
// sort (equal scores keep their input order), and truncates to top-K.
func (s *Selector) Select(items []domain.ScoredArticle) []domain.ScoredArticle {
	scored := make([]domain.ScoredArticle, len(items))
	copy(scored, items)
	for i := range scored {
		scored[i].FinalScore = s.Score(scored[i].Analysis)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})

	if len(scored) > s.topK {
		scored = scored[:s.topK]
	}
	return scored
}
