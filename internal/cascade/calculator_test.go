package cascade

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStageChain() []Stage {
	return []Stage{
		{Name: "habitat", InputWeight: 0.85, Kind: KindIndex},
		{Name: "seaweed", InputWeight: 0.90, Kind: KindIndex},
		{Name: "economy", InputWeight: 2.4, Kind: KindMultiplier},
	}
}

func TestEvaluate_ThreeStageChain(t *testing.T) {
	calc, err := NewCalculator(threeStageChain()...)
	require.NoError(t, err)

	baseline, err := calc.Evaluate(70)
	require.NoError(t, err)
	perturbed, err := calc.Evaluate(63)
	require.NoError(t, err)

	assert.InDelta(t, 59.5, baseline.Stages[0].Value, 1e-9)
	assert.InDelta(t, 53.55, baseline.Stages[1].Value, 1e-9)
	assert.InDelta(t, 128.52, baseline.Final.Value, 1e-9)
	assert.False(t, baseline.Final.Clamped, "multiplier stages never clamp")

	assert.InDelta(t, 63*0.85*0.90*2.4, perturbed.Final.Value, 1e-9)
	change := (perturbed.Final.Value - baseline.Final.Value) / baseline.Final.Value * 100
	assert.InDelta(t, -10.0, change, 1e-9)
}

func TestEvaluate_Idempotent(t *testing.T) {
	calc, err := NewCalculator(MarineEconomyStages()...)
	require.NoError(t, err)

	first, err := calc.Evaluate(72.4)
	require.NoError(t, err)
	second, err := calc.Evaluate(72.4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluate_MarineEconomyPreset(t *testing.T) {
	res, err := Evaluate(70, MarineEconomyStages())
	require.NoError(t, err)
	require.Len(t, res.Stages, 5)

	want := []struct {
		name   string
		output string
		unit   string
	}{
		{"whisky_industry_value", "74375000.00", "GBP"},
		{"whisky_tourism_value", "33468750.00", "GBP"},
		{"edinburgh_whisky_tourism", "25101562.50", "GBP"},
		{"jobs_supported", "334.00", "jobs"},
		{"local_economy_impact", "45182812.50", "GBP"},
	}
	for i, w := range want {
		assert.Equal(t, w.name, res.Stages[i].Name)
		assert.Equal(t, w.output, res.Stages[i].Output.StringFixed(2), w.name)
		assert.Equal(t, w.unit, res.Stages[i].Unit)
	}
	assert.Equal(t, "local_economy_impact", res.Final.Name)
}

func TestEvaluate_ClampsIndexStages(t *testing.T) {
	stages := []Stage{
		{Name: "boost", InputWeight: 1.5},
		{Name: "scale", InputWeight: 2, Kind: KindMultiplier},
	}

	res, err := Evaluate(90, stages)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Stages[0].Value)
	assert.True(t, res.Stages[0].Clamped)
	assert.Equal(t, 200.0, res.Final.Value, "carried value is the clamped one")

	res, err = Evaluate(140, stages)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Input)
	assert.True(t, res.InputClamped)

	res, err = Evaluate(-5, stages)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Input)
	assert.Equal(t, 0.0, res.Final.Value)
}

func TestEvaluate_TransformIsPresentational(t *testing.T) {
	stages := []Stage{
		{Name: "value", InputWeight: 0.5, Transform: Currency{Baseline: decimal.NewFromInt(1_000_000)}},
		{Name: "next", InputWeight: 0.5},
	}
	res, err := Evaluate(80, stages)
	require.NoError(t, err)
	assert.Equal(t, "400000.00", res.Stages[0].Output.StringFixed(2))
	assert.Equal(t, 20.0, res.Stages[1].Value)
	assert.Equal(t, "index", res.Stages[1].Unit)
}

func TestSensitivity_SymmetricForLinearChain(t *testing.T) {
	calc, err := NewCalculator(threeStageChain()...)
	require.NoError(t, err)

	up, err := calc.Sensitivity(50, 5)
	require.NoError(t, err)
	down, err := calc.Sensitivity(50, -5)
	require.NoError(t, err)

	for i := range up.Stages {
		assert.InDelta(t, -up.Stages[i].AbsoluteChange, down.Stages[i].AbsoluteChange, 1e-9)
		assert.InDelta(t, -up.Stages[i].PercentChange, down.Stages[i].PercentChange, 1e-9)
		assert.Greater(t, up.Stages[i].AbsoluteChange, 0.0)
	}
	assert.InDelta(t, 10.0, up.Final.PercentChange, 1e-9)
}

func TestSensitivity_ZeroBaseline(t *testing.T) {
	res, err := SensitivityOf(0, 10, threeStageChain())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Final.PercentChange)
	assert.Greater(t, res.Final.AbsoluteChange, 0.0)
}

func TestSensitivity_OutputChange(t *testing.T) {
	res, err := SensitivityOf(70, -7, MarineEconomyStages())
	require.NoError(t, err)

	first := res.Stages[0]
	assert.Equal(t, "-7437500.00", first.OutputChange.StringFixed(2))
	assert.InDelta(t, -10.0, first.PercentChange, 1e-9)
}

func TestScenarios(t *testing.T) {
	calc, err := NewCalculator(MarineEconomyStages()...)
	require.NoError(t, err)

	results, err := calc.Scenarios(70, -10, 0, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Less(t, results[0].Final.AbsoluteChange, 0.0)
	assert.Equal(t, 0.0, results[1].Final.AbsoluteChange)
	assert.Greater(t, results[2].Final.AbsoluteChange, 0.0)
}

func TestNewCalculator_Validation(t *testing.T) {
	_, err := NewCalculator()
	assert.ErrorIs(t, err, ErrNoStages)

	_, err = NewCalculator(Stage{InputWeight: 1})
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = NewCalculator(Stage{Name: "neg", InputWeight: -0.5})
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = NewCalculator(Stage{Name: "odd", InputWeight: 1, Kind: "log"})
	assert.ErrorIs(t, err, ErrInvalidStage)

	calc, err := NewCalculator(threeStageChain()...)
	require.NoError(t, err)
	_, err = calc.Evaluate(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidScore)
	_, err = calc.Sensitivity(50, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestStagesAreCopied(t *testing.T) {
	stages := threeStageChain()
	calc, err := NewCalculator(stages...)
	require.NoError(t, err)

	stages[0].InputWeight = 0
	got := calc.Stages()
	assert.Equal(t, 0.85, got[0].InputWeight)
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		stages, ok := Preset(name)
		require.True(t, ok, name)
		_, err := NewCalculator(stages...)
		assert.NoError(t, err, name)
	}
	_, ok := Preset("unknown")
	assert.False(t, ok)
}

func TestHeadcountTransform(t *testing.T) {
	h := Headcount{Basis: decimal.NewFromInt(80_000_000), CostPerJob: decimal.NewFromInt(75_000)}
	assert.Equal(t, "746", h.Apply(70).String())
	assert.True(t, Headcount{}.Apply(50).IsZero())
}
