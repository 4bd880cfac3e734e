package synth

import (
	"math"
	"sort"
)

// Profile parameterises the deterministic base trend and the plausible range
// of one variable. Time is measured in samples (days by default).
type Profile struct {
	Name      string  `json:"name" mapstructure:"name"`
	Mean      float64 `json:"mean" mapstructure:"mean"`
	Amplitude float64 `json:"amplitude" mapstructure:"amplitude"` // annual cycle
	Harmonic  float64 `json:"harmonic" mapstructure:"harmonic"`   // semi-annual cycle
	Drift     float64 `json:"drift" mapstructure:"drift"`         // per sample
	Spread    float64 `json:"spread" mapstructure:"spread"`       // std dev of the non-seasonal component
	Min       float64 `json:"min" mapstructure:"min"`
	Max       float64 `json:"max" mapstructure:"max"`
	Period    float64 `json:"period" mapstructure:"period"`
	Phase     float64 `json:"phase" mapstructure:"phase"` // samples from year start to the rising zero crossing
}

// Trend evaluates the base trend at sample position t.
func (p Profile) Trend(t float64) float64 {
	period := p.Period
	if period <= 0 {
		period = 365
	}
	x := 2 * math.Pi * (t - p.Phase) / period
	return p.Mean + p.Amplitude*math.Sin(x) + p.Harmonic*math.Sin(2*x) + p.Drift*t
}

func (p Profile) validate() error {
	switch {
	case p.Name == "":
		return invalidf("profile name must not be empty")
	case p.Spread <= 0:
		return invalidf("profile %q spread must be positive", p.Name)
	case p.Max <= p.Min:
		return invalidf("profile %q max must exceed min", p.Name)
	case p.Period < 0:
		return invalidf("profile %q period must not be negative", p.Name)
	}
	return nil
}

// Variable names for the built-in profiles.
const (
	VarTemperature     = "temperature"
	VarHumidity        = "humidity"
	VarWindSpeed       = "wind_speed"
	VarPressure        = "pressure"
	VarPrecipitation   = "precipitation"
	VarMarineHealth    = "marine_health"
	VarSeaweedHealth   = "seaweed_health"
	VarHabitatQuality  = "habitat_quality"
	VarWhiskyQuality   = "whisky_quality"
	VarEdinburghImpact = "edinburgh_impact"
	VarFishingPressure = "fishing_pressure"
)

// DefaultProfiles returns daily profiles tuned to the Scottish east coast and
// the derived ecosystem indices.
func DefaultProfiles() []Profile {
	profiles := []Profile{
		{Name: VarTemperature, Mean: 8.5, Amplitude: 5.5, Harmonic: 0.4, Spread: 2.0, Min: -15, Max: 32, Period: 365, Phase: 105},
		{Name: VarHumidity, Mean: 78, Amplitude: -4, Spread: 4, Min: 25, Max: 100, Period: 365, Phase: 105},
		{Name: VarWindSpeed, Mean: 5.5, Amplitude: -1.2, Spread: 1.2, Min: 0, Max: 35, Period: 365, Phase: 105},
		{Name: VarPressure, Mean: 1012, Amplitude: 3, Spread: 8, Min: 940, Max: 1060, Period: 365, Phase: 105},
		{Name: VarPrecipitation, Mean: 3.5, Amplitude: -0.8, Spread: 0.9, Min: 0, Max: 60, Period: 365, Phase: 105},
		{Name: VarMarineHealth, Mean: 70, Amplitude: 10, Harmonic: 5, Drift: -0.005, Spread: 3, Min: 0, Max: 100, Period: 365},
		{Name: VarSeaweedHealth, Mean: 61.6, Amplitude: 8.8, Harmonic: 4.4, Drift: -0.0044, Spread: 3, Min: 0, Max: 100, Period: 365},
		{Name: VarHabitatQuality, Mean: 65, Amplitude: 8, Harmonic: 3, Spread: 4, Min: 0, Max: 100, Period: 365, Phase: 20},
		{Name: VarWhiskyQuality, Mean: 85, Amplitude: 2, Spread: 2, Min: 0, Max: 100, Period: 365, Phase: 60},
		{Name: VarEdinburghImpact, Mean: 60, Amplitude: 6, Spread: 4, Min: 0, Max: 100, Period: 365, Phase: 75},
		{Name: VarFishingPressure, Mean: 35, Amplitude: 10, Spread: 6, Min: 0, Max: 100, Period: 365, Phase: 150},
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}
