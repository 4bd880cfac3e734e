package models

import "time"

// SyntheticSeries is one generated variable. Valid reports whether every
// tracked pair involving the variable landed within the spec's epsilon.
type SyntheticSeries struct {
	Variable     string          `json:"variable"`
	Start        time.Time       `json:"start"`
	Step         time.Duration   `json:"step"`
	Values       []float64       `json:"values"`
	Spec         CorrelationSpec `json:"correlation_spec"`
	Valid        bool            `json:"valid"`
	Attempts     int             `json:"attempts"`
	MaxDeviation float64         `json:"max_deviation"`
}

// Last returns the final sample, or 0 for an empty series.
func (s SyntheticSeries) Last() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	return s.Values[len(s.Values)-1]
}
