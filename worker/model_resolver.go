package worker

import "fmt"

// ModelResolver resolves an agent's execution config into a concrete model
// selection (§6, "Execution config": `tier`, `model`, `provider`).
type ModelResolver interface {
	Resolve(cfg ManifestConfig) (ResolvedModel, error)
}

// ManifestConfig is the subset of manifest.Config a ModelResolver needs.
// It is expressed independently of the manifest package so ModelResolver
// implementations need not import it; the Executor adapts manifest.Config
// into it (see Executor.runAttempt).
type ManifestConfig struct {
	Tier        string
	Model       string
	Provider    string
	Temperature float64
	MaxTokens   int
	TimeoutMs   int
}

// TierTable resolves a tier name to a concrete model id and default
// provider, for agents whose config specifies "model: auto" (or leaves
// Model empty) alongside a tier.
type TierTable struct {
	Tiers           map[string]string // tier -> model id
	ProviderForTier map[string]string // tier -> provider
	DefaultProvider func(model string) string
}

// Resolve implements ModelResolver using the tier table: an explicit Model
// always wins; otherwise the tier is looked up, falling back to "balanced"
// when the config names no tier at all.
func (t TierTable) Resolve(cfg ManifestConfig) (ResolvedModel, error) {
	model := cfg.Model
	tier := cfg.Tier
	if model == "" || model == "auto" {
		if tier == "" {
			tier = "balanced"
		}
		m, ok := t.Tiers[tier]
		if !ok {
			return ResolvedModel{}, fmt.Errorf("worker: unknown model tier %q", tier)
		}
		model = m
	}

	provider := cfg.Provider
	if provider == "" {
		if p, ok := t.ProviderForTier[tier]; ok {
			provider = p
		} else if t.DefaultProvider != nil {
			provider = t.DefaultProvider(model)
		}
	}

	return ResolvedModel{
		Model:       model,
		Provider:    provider,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TimeoutMs:   cfg.TimeoutMs,
	}, nil
}
