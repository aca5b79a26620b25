package tracking

import (
	"strings"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

// Default event costs.
const (
	DefaultDivisionCost  = -0.2
	DefaultAppearCost    = -1.0
	DefaultDisappearCost = -1.0
)

// Costs are the signed objective coefficients of track events. Negative
// values act as penalties that edge affinity must outweigh.
type Costs struct {
	Division  float64 `json:"division" toml:"division"`
	Appear    float64 `json:"appear" toml:"appear"`
	Disappear float64 `json:"disappear" toml:"disappear"`
}

// DefaultCosts returns the default event costs.
func DefaultCosts() Costs {
	return Costs{
		Division:  DefaultDivisionCost,
		Appear:    DefaultAppearCost,
		Disappear: DefaultDisappearCost,
	}
}

// Validate rejects non-finite costs.
func (c Costs) Validate() error {
	if err := bterrors.ValidateFinite("division cost", c.Division); err != nil {
		return err
	}
	if err := bterrors.ValidateFinite("appear cost", c.Appear); err != nil {
		return err
	}
	return bterrors.ValidateFinite("disappear cost", c.Disappear)
}

// Variant selects a [Solver] implementation.
type Variant int

const (
	MIP Variant = iota
	Graph
)

var variantNames = [...]string{
	MIP:   "mip",
	Graph: "graph",
}

// Variants returns the accepted solver names in declaration order.
func Variants() []string { return variantNames[:] }

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return "unknown"
	}
	return variantNames[v]
}

// ParseVariant resolves a solver name. Matching is case-insensitive and
// accepts the legacy "_solver" suffix ("mip_solver").
func ParseVariant(name string) (Variant, error) {
	key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "_solver")
	for v, n := range variantNames {
		if key == n {
			return Variant(v), nil
		}
	}
	return 0, bterrors.InvalidChoice("solver", name, Variants())
}

// MarshalText encodes the variant name.
func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText parses a variant name with [ParseVariant].
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
