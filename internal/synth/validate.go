package synth

import (
	"math"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/stats"
)

// Pearson is the correlation measure used for validation.
func Pearson(x, y []float64) float64 {
	return stats.Pearson(x, y)
}

// Validate recomputes every tracked pair present in series and returns the
// largest absolute deviation from its target and whether it is within the
// spec's epsilon. Pairs with fewer than two samples pass trivially.
func Validate(series map[string]models.SyntheticSeries, spec models.CorrelationSpec) (float64, bool) {
	worst := 0.0
	for _, t := range spec.Targets() {
		a, okA := series[t.A]
		b, okB := series[t.B]
		if !okA || !okB || len(a.Values) < 2 || len(b.Values) < 2 {
			continue
		}
		worst = math.Max(worst, math.Abs(Pearson(a.Values, b.Values)-t.Coefficient))
	}
	return worst, worst <= spec.Epsilon()
}
