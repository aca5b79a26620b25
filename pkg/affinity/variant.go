package affinity

import (
	"strings"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

// Variant selects the similarity measure used by [Build].
type Variant int

const (
	Overlap Variant = iota
	IoU
	Distance
)

var variantNames = [...]string{
	Overlap:  "overlap",
	IoU:      "iou",
	Distance: "distance",
}

// Variants returns the accepted variant names in declaration order.
func Variants() []string { return variantNames[:] }

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return "unknown"
	}
	return variantNames[v]
}

// ParseVariant resolves a variant name. Matching is case-insensitive and
// accepts the legacy "_weight" suffix ("iou_weight").
func ParseVariant(name string) (Variant, error) {
	key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "_weight")
	for v, n := range variantNames {
		if key == n {
			return Variant(v), nil
		}
	}
	return 0, bterrors.InvalidChoice("weight variant", name, Variants())
}
