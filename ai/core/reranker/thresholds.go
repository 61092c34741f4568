package reranker

import "strings"

// DefaultThreshold applies to unknown domains and to entries without targets.
const DefaultThreshold = 0.70

// Domains whose on/off phrasings score closer together get a stricter cutoff.
var defaultDomainThresholds = map[string]float64{
	"light":   0.73,
	"switch":  0.73,
	"fan":     0.73,
	"cover":   0.73,
	"climate": 0.69,
}

// Thresholds holds the acceptance cutoff per target domain.
type Thresholds struct {
	PerDomain map[string]float64
	Default   float64
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return NewThresholds(DefaultThreshold, nil)
}

// NewThresholds layers overrides on top of the tuned per-domain defaults.
func NewThresholds(def float64, overrides map[string]float64) Thresholds {
	per := make(map[string]float64, len(defaultDomainThresholds)+len(overrides))
	for d, v := range defaultDomainThresholds {
		per[d] = v
	}
	for d, v := range overrides {
		per[d] = v
	}
	if def <= 0 {
		def = DefaultThreshold
	}
	return Thresholds{PerDomain: per, Default: def}
}

// For returns the threshold for domain.
func (t Thresholds) For(domain string) float64 {
	if v, ok := t.PerDomain[domain]; ok {
		return v
	}
	return t.Default
}

// DomainOf derives the domain from the first target id ("light.kitchen" -> "light").
// It returns "" when there are no targets or the id has no domain prefix.
func DomainOf(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	domain, _, ok := strings.Cut(targets[0], ".")
	if !ok {
		return ""
	}
	return domain
}
