package cascade

import (
	"github.com/shopspring/decimal"
)

// StageKind selects the clamping policy of a stage.
type StageKind string

const (
	// KindIndex stages carry a 0..100 index and clamp to that range.
	KindIndex StageKind = "index"
	// KindMultiplier stages scale freely and never clamp.
	KindMultiplier StageKind = "multiplier"
)

// Transform converts a stage's carried value into its reported output. It is
// presentational only: the next stage always receives the carried value.
type Transform interface {
	Apply(value float64) decimal.Decimal
	Unit() string
}

var hundred = decimal.NewFromInt(100)

// Currency reports Baseline × value / 100, rounded to pence.
type Currency struct {
	Baseline decimal.Decimal `json:"baseline"`
	Code     string          `json:"code"`
}

func (c Currency) Apply(value float64) decimal.Decimal {
	return c.Baseline.Mul(decimal.NewFromFloat(value)).Div(hundred).Round(2)
}

func (c Currency) Unit() string {
	if c.Code == "" {
		return "GBP"
	}
	return c.Code
}

// Headcount reports how many jobs Basis × value / 100 funds at CostPerJob,
// rounded down.
type Headcount struct {
	Basis      decimal.Decimal `json:"basis"`
	CostPerJob decimal.Decimal `json:"cost_per_job"`
}

func (h Headcount) Apply(value float64) decimal.Decimal {
	if h.CostPerJob.IsZero() {
		return decimal.Zero
	}
	return h.Basis.Mul(decimal.NewFromFloat(value)).Div(hundred).Div(h.CostPerJob).Floor()
}

func (h Headcount) Unit() string { return "jobs" }

// Index reports the carried value itself, rounded to two places.
type Index struct{}

func (Index) Apply(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(2)
}

func (Index) Unit() string { return "index" }

// Stage is one weighted step of a cascade.
type Stage struct {
	Name        string    `json:"name"`
	InputWeight float64   `json:"input_weight"`
	Kind        StageKind `json:"kind"`
	Transform   Transform `json:"-"`
}

func (s Stage) kind() StageKind {
	if s.Kind == "" {
		return KindIndex
	}
	return s.Kind
}

func (s Stage) transform() Transform {
	if s.Transform == nil {
		return Index{}
	}
	return s.Transform
}

// Preset names understood by Preset.
const (
	PresetMarineEconomy  = "marine_economy"
	PresetCoastalTourism = "coastal_tourism"
)

// Economic constants of the marine-health cascade, in pounds.
var (
	WhiskyIndustryBaseline = decimal.NewFromInt(125_000_000)
	CoastalTourismBaseline = decimal.NewFromInt(80_000_000)
	AverageJobCost         = decimal.NewFromInt(75_000)
)

// MarineEconomyStages follows marine health through the whisky industry into
// Edinburgh: 85% of the health-scaled industry value, 45% of that tourism
// related, 75% of tourism spent in Edinburgh, the jobs that spend supports,
// and the 1.8× local multiplier.
func MarineEconomyStages() []Stage {
	gbp := Currency{Baseline: WhiskyIndustryBaseline, Code: "GBP"}
	return []Stage{
		{Name: "whisky_industry_value", InputWeight: 0.85, Kind: KindIndex, Transform: gbp},
		{Name: "whisky_tourism_value", InputWeight: 0.45, Kind: KindIndex, Transform: gbp},
		{Name: "edinburgh_whisky_tourism", InputWeight: 0.75, Kind: KindIndex, Transform: gbp},
		{Name: "jobs_supported", InputWeight: 1.0, Kind: KindIndex, Transform: Headcount{Basis: WhiskyIndustryBaseline, CostPerJob: AverageJobCost}},
		{Name: "local_economy_impact", InputWeight: 1.8, Kind: KindMultiplier, Transform: gbp},
	}
}

// CoastalTourismStages values coastal tourism directly from marine health.
func CoastalTourismStages() []Stage {
	return []Stage{
		{Name: "coastal_tourism_value", InputWeight: 1.0, Kind: KindIndex, Transform: Currency{Baseline: CoastalTourismBaseline, Code: "GBP"}},
		{Name: "coastal_jobs_supported", InputWeight: 1.0, Kind: KindIndex, Transform: Headcount{Basis: CoastalTourismBaseline, CostPerJob: AverageJobCost}},
	}
}

// Preset returns the stages registered under name.
func Preset(name string) ([]Stage, bool) {
	switch name {
	case PresetMarineEconomy:
		return MarineEconomyStages(), true
	case PresetCoastalTourism:
		return CoastalTourismStages(), true
	default:
		return nil, false
	}
}

// PresetNames lists the registered presets.
func PresetNames() []string {
	return []string{PresetCoastalTourism, PresetMarineEconomy}
}
