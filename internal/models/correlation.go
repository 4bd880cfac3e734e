package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/irfndi/tides-tomes-go/internal/stats"
	"github.com/irfndi/tides-tomes-go/internal/utils"
)

// ErrInfeasibleCorrelation is returned when the correlation targets cannot
// be realised by any joint distribution.
var ErrInfeasibleCorrelation = errors.New("correlation targets are not positive semidefinite")

// DefaultCorrelationEpsilon is the tolerance used when none is configured.
const DefaultCorrelationEpsilon = 0.05

// Pair is an unordered variable pair, stored with A < B.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPair returns the normalized pair for a and b.
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// CorrelationTarget is a single pairwise Pearson target.
type CorrelationTarget struct {
	A           string  `json:"a" binding:"required"`
	B           string  `json:"b" binding:"required"`
	Coefficient float64 `json:"coefficient"`
}

// CorrelationSpec is a symmetric set of pairwise correlation targets with a
// validation tolerance. Pairs not listed are left to the generator: they are
// completed along the strongest chain of listed pairs connecting them.
type CorrelationSpec struct {
	targets map[Pair]float64
	epsilon float64
}

// NewCorrelationSpec validates targets and checks that the completed
// correlation matrix over every mentioned variable is positive semidefinite.
func NewCorrelationSpec(epsilon float64, targets ...CorrelationTarget) (CorrelationSpec, error) {
	if math.IsNaN(epsilon) || epsilon < 0 {
		return CorrelationSpec{}, utils.NewValidationErrorf("epsilon", "must be non-negative, got %v", epsilon)
	}

	spec := CorrelationSpec{targets: make(map[Pair]float64, len(targets)), epsilon: epsilon}
	for _, t := range targets {
		if t.A == "" || t.B == "" {
			return CorrelationSpec{}, utils.NewValidationError("targets", "variable names must not be empty")
		}
		if t.A == t.B {
			return CorrelationSpec{}, utils.NewValidationErrorf("targets", "self-correlation for %q is implicit", t.A)
		}
		if math.IsNaN(t.Coefficient) || t.Coefficient < -1 || t.Coefficient > 1 {
			return CorrelationSpec{}, utils.NewValidationErrorf("targets", "coefficient for %s/%s must be in [-1,1], got %v", t.A, t.B, t.Coefficient)
		}
		p := NewPair(t.A, t.B)
		if prev, ok := spec.targets[p]; ok && prev != t.Coefficient {
			return CorrelationSpec{}, utils.NewValidationErrorf("targets", "conflicting targets for %s/%s", p.A, p.B)
		}
		spec.targets[p] = t.Coefficient
	}

	if _, err := spec.Matrix(spec.Variables()); err != nil {
		return CorrelationSpec{}, err
	}
	return spec, nil
}

// Epsilon is the allowed absolute deviation from each target.
func (s CorrelationSpec) Epsilon() float64 { return s.epsilon }

// Target returns the declared coefficient for a pair.
func (s CorrelationSpec) Target(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	v, ok := s.targets[NewPair(a, b)]
	return v, ok
}

// Targets returns the declared targets sorted by pair.
func (s CorrelationSpec) Targets() []CorrelationTarget {
	out := make([]CorrelationTarget, 0, len(s.targets))
	for p, c := range s.targets {
		out = append(out, CorrelationTarget{A: p.A, B: p.B, Coefficient: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Variables lists every variable named by a target, sorted.
func (s CorrelationSpec) Variables() []string {
	seen := map[string]struct{}{}
	for p := range s.targets {
		seen[p.A] = struct{}{}
		seen[p.B] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// WithTargets returns a copy of the spec with the given coefficients
// replacing the declared ones. Used to steer re-mixing; the result is not
// re-validated.
func (s CorrelationSpec) WithTargets(overrides map[Pair]float64) CorrelationSpec {
	targets := make(map[Pair]float64, len(s.targets))
	for p, c := range s.targets {
		targets[p] = c
	}
	for p, c := range overrides {
		targets[NewPair(p.A, p.B)] = c
	}
	return CorrelationSpec{targets: targets, epsilon: s.epsilon}
}

// Matrix returns the completed correlation matrix for vars in the given
// order. Untracked pairs take the product of coefficients along the
// strongest path of tracked pairs between them, or 0 when disconnected.
func (s CorrelationSpec) Matrix(vars []string) ([][]float64, error) {
	all := s.Variables()
	index := make(map[string]int, len(all)+len(vars))
	for _, v := range all {
		index[v] = len(index)
	}
	for _, v := range vars {
		if _, ok := index[v]; !ok {
			index[v] = len(index)
		}
	}

	n := len(index)
	mag := stats.Identity(n)
	sign := make([][]float64, n)
	for i := range sign {
		sign[i] = make([]float64, n)
		sign[i][i] = 1
	}
	for p, c := range s.targets {
		i, j := index[p.A], index[p.B]
		mag[i][j], mag[j][i] = math.Abs(c), math.Abs(c)
		sg := 1.0
		if c < 0 {
			sg = -1
		}
		sign[i][j], sign[j][i] = sg, sg
	}

	declared := make([][]bool, n)
	for i := range declared {
		declared[i] = make([]bool, n)
		declared[i][i] = true
	}
	for p := range s.targets {
		i, j := index[p.A], index[p.B]
		declared[i][j], declared[j][i] = true, true
	}

	// Max-product closure over magnitudes; declared pairs are never replaced.
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if declared[i][j] {
					continue
				}
				if cand := mag[i][k] * mag[k][j]; cand > mag[i][j] {
					mag[i][j] = cand
					sign[i][j] = sign[i][k] * sign[k][j]
				}
			}
		}
	}

	full := make([][]float64, n)
	for i := range full {
		full[i] = make([]float64, n)
		for j := range full[i] {
			full[i][j] = mag[i][j] * sign[i][j]
		}
	}
	if _, err := stats.Cholesky(full); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfeasibleCorrelation, err)
	}

	out := make([][]float64, len(vars))
	for a, va := range vars {
		out[a] = make([]float64, len(vars))
		for b, vb := range vars {
			out[a][b] = full[index[va]][index[vb]]
		}
	}
	return out, nil
}

// MarshalJSON renders the spec with its targets listed explicitly.
func (s CorrelationSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Epsilon float64             `json:"epsilon"`
		Targets []CorrelationTarget `json:"targets"`
	}{s.epsilon, s.Targets()})
}
