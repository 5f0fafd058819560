package extract

import "fmt"

// Strategy describes how to pull body text out of one publisher's pages:
// an ordered list of content selectors tried until one yields enough text.
type Strategy struct {
	Name          string
	BodySelectors []string
}

// Registry keeps a mapping from strategy names to their definitions.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy definition.
func (r *Registry) Register(s Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[s.Name] = s
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if s, ok := r.strategies[name]; ok {
		return s, nil
	}
	return Strategy{}, fmt.Errorf("extraction strategy %s is not registered", name)
}

// Defaults returns a registry preloaded with the known publisher layouts
// plus a generic fallback for sites using common article markup.
func Defaults() *Registry {
	r := NewRegistry()
	r.Register(Strategy{
		Name: "emol",
		BodySelectors: []string{
			"#cuDetalle_cuTexto_textoNoticia",
			"div.EmolText",
			"article .texto",
		},
	})
	r.Register(Strategy{
		Name: "latercera",
		BodySelectors: []string{
			"div.single-content",
			"div.article-body",
			"article .paywall",
		},
	})
	r.Register(Strategy{
		Name: "generic",
		BodySelectors: []string{
			"article",
			"div.article-body",
			"div.post-content",
			"main",
		},
	})
	return r
}
