package cache

import "time"

// WeightKeyOpts are the parameters that determine an affinity matrix.
type WeightKeyOpts struct {
	Variant   string  `json:"variant"`
	Threshold float64 `json:"threshold"`
	Scale     float64 `json:"scale"`
	MinWeight float64 `json:"min_weight"`
}

// SolveKeyOpts are the parameters that determine a selection.
type SolveKeyOpts struct {
	Solver      string        `json:"solver"`
	Division    float64       `json:"division"`
	Appear      float64       `json:"appear"`
	Disappear   float64       `json:"disappear"`
	WeightsHash string        `json:"weights_hash"`
	PenaltyHash string        `json:"penalty_hash,omitempty"`
	TimeLimit   time.Duration `json:"time_limit,omitempty"`
	GapLimit    float64       `json:"gap_limit,omitempty"`
	NodeLimit   int           `json:"node_limit,omitempty"`
}

// Keyer derives cache keys from content hashes and parameters.
type Keyer interface {
	WeightsKey(seqHash string, opts WeightKeyOpts) string
	SolveKey(seqHash string, opts SolveKeyOpts) string
}

// DefaultKeyer produces "kind:sha256" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// WeightsKey returns the key of an affinity matrix.
func (DefaultKeyer) WeightsKey(seqHash string, opts WeightKeyOpts) string {
	return hashKey("weights", seqHash, opts)
}

// SolveKey returns the key of a solved selection.
func (DefaultKeyer) SolveKey(seqHash string, opts SolveKeyOpts) string {
	return hashKey("solve", seqHash, opts)
}

// ScopedKeyer prefixes every key of an inner Keyer, giving callers that share
// a backend separate namespaces:
//
//	apiKeyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "api:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner with prefix. A nil inner means DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// WeightsKey returns the prefixed matrix key.
func (k *ScopedKeyer) WeightsKey(seqHash string, opts WeightKeyOpts) string {
	return k.prefix + k.inner.WeightsKey(seqHash, opts)
}

// SolveKey returns the prefixed selection key.
func (k *ScopedKeyer) SolveKey(seqHash string, opts SolveKeyOpts) string {
	return k.prefix + k.inner.SolveKey(seqHash, opts)
}
