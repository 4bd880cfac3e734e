// Package cascade propagates a 0..100 health score through an ordered chain
// of weighted stages and reports how the chain responds to input changes.
// Every function here is pure.
package cascade

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/irfndi/tides-tomes-go/internal/stats"
)

var (
	// ErrNoStages is returned for an empty stage list.
	ErrNoStages = errors.New("cascade requires at least one stage")
	// ErrInvalidStage is returned for a stage with a bad name, weight or kind.
	ErrInvalidStage = errors.New("invalid cascade stage")
	// ErrInvalidScore is returned for NaN or infinite scores and deltas.
	ErrInvalidScore = errors.New("invalid cascade score")
)

const (
	indexMin = 0.0
	indexMax = 100.0
)

// StageValue is one stage's carried value and its presentational output.
type StageValue struct {
	Name    string          `json:"name"`
	Value   float64         `json:"value"`
	Clamped bool            `json:"clamped"`
	Output  decimal.Decimal `json:"output"`
	Unit    string          `json:"unit"`
}

// Result holds every stage of a single evaluation.
type Result struct {
	Input        float64      `json:"input"`
	InputClamped bool         `json:"input_clamped"`
	Stages       []StageValue `json:"stages"`
	Final        StageValue   `json:"final"`
}

// StageDelta compares one stage between a baseline and a perturbed run.
type StageDelta struct {
	Name            string          `json:"name"`
	Baseline        float64         `json:"baseline"`
	Perturbed       float64         `json:"perturbed"`
	AbsoluteChange  float64         `json:"absolute_change"`
	PercentChange   float64         `json:"percent_change"`
	OutputBaseline  decimal.Decimal `json:"output_baseline"`
	OutputPerturbed decimal.Decimal `json:"output_perturbed"`
	OutputChange    decimal.Decimal `json:"output_change"`
	Unit            string          `json:"unit"`
}

// Sensitivity is the per-stage response to moving the score by Delta.
type Sensitivity struct {
	Score     float64      `json:"score"`
	Delta     float64      `json:"delta"`
	Baseline  Result       `json:"baseline"`
	Perturbed Result       `json:"perturbed"`
	Stages    []StageDelta `json:"stages"`
	Final     StageDelta   `json:"final"`
}

// Calculator evaluates a fixed stage list.
type Calculator struct {
	stages []Stage
}

// NewCalculator validates stages and returns a calculator holding a copy.
func NewCalculator(stages ...Stage) (*Calculator, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}
	return &Calculator{stages: append([]Stage(nil), stages...)}, nil
}

// Stages returns a copy of the configured stages.
func (c *Calculator) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Evaluate runs score through the chain.
func (c *Calculator) Evaluate(score float64) (Result, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return evaluate(score, c.stages), nil
}

// Sensitivity evaluates score and score+delta and reports per-stage changes.
func (c *Calculator) Sensitivity(score, delta float64) (Sensitivity, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Sensitivity{}, fmt.Errorf("%w: delta %v", ErrInvalidScore, delta)
	}
	baseline, err := c.Evaluate(score)
	if err != nil {
		return Sensitivity{}, err
	}
	perturbed, err := c.Evaluate(score + delta)
	if err != nil {
		return Sensitivity{}, err
	}

	out := Sensitivity{
		Score:     score,
		Delta:     delta,
		Baseline:  baseline,
		Perturbed: perturbed,
		Stages:    make([]StageDelta, len(baseline.Stages)),
	}
	for i := range baseline.Stages {
		out.Stages[i] = compare(baseline.Stages[i], perturbed.Stages[i])
	}
	out.Final = out.Stages[len(out.Stages)-1]
	return out, nil
}

// Scenarios runs Sensitivity once per delta.
func (c *Calculator) Scenarios(score float64, deltas ...float64) ([]Sensitivity, error) {
	out := make([]Sensitivity, 0, len(deltas))
	for _, d := range deltas {
		s, err := c.Sensitivity(score, d)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Evaluate validates stages and runs score through them.
func Evaluate(score float64, stages []Stage) (Result, error) {
	c, err := NewCalculator(stages...)
	if err != nil {
		return Result{}, err
	}
	return c.Evaluate(score)
}

// SensitivityOf validates stages and reports the response to delta.
func SensitivityOf(score, delta float64, stages []Stage) (Sensitivity, error) {
	c, err := NewCalculator(stages...)
	if err != nil {
		return Sensitivity{}, err
	}
	return c.Sensitivity(score, delta)
}

func evaluate(score float64, stages []Stage) Result {
	input := stats.Clamp(score, indexMin, indexMax)
	res := Result{
		Input:        input,
		InputClamped: input != score,
		Stages:       make([]StageValue, len(stages)),
	}

	carried := input
	for i, st := range stages {
		v := carried * st.InputWeight
		clamped := false
		if st.kind() == KindIndex {
			bounded := stats.Clamp(v, indexMin, indexMax)
			clamped = bounded != v
			v = bounded
		}
		t := st.transform()
		res.Stages[i] = StageValue{
			Name:    st.Name,
			Value:   v,
			Clamped: clamped,
			Output:  t.Apply(v),
			Unit:    t.Unit(),
		}
		carried = v
	}
	res.Final = res.Stages[len(res.Stages)-1]
	return res
}

func compare(base, pert StageValue) StageDelta {
	d := StageDelta{
		Name:            base.Name,
		Baseline:        base.Value,
		Perturbed:       pert.Value,
		AbsoluteChange:  pert.Value - base.Value,
		OutputBaseline:  base.Output,
		OutputPerturbed: pert.Output,
		OutputChange:    pert.Output.Sub(base.Output),
		Unit:            base.Unit,
	}
	if base.Value != 0 {
		d.PercentChange = d.AbsoluteChange / base.Value * 100
	}
	return d
}

func validateStages(stages []Stage) error {
	if len(stages) == 0 {
		return ErrNoStages
	}
	for i, st := range stages {
		switch {
		case st.Name == "":
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidStage, i)
		case math.IsNaN(st.InputWeight) || math.IsInf(st.InputWeight, 0) || st.InputWeight < 0:
			return fmt.Errorf("%w: stage %q weight must be a non-negative number, got %v", ErrInvalidStage, st.Name, st.InputWeight)
		case st.kind() != KindIndex && st.kind() != KindMultiplier:
			return fmt.Errorf("%w: stage %q has unknown kind %q", ErrInvalidStage, st.Name, st.Kind)
		}
	}
	return nil
}
