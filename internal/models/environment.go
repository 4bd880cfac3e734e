package models

import "time"

// WeatherObservation is the normalized current weather for a monitored region.
type WeatherObservation struct {
	Region      string               `json:"region"`
	Temperature float64              `json:"temperature"`
	Humidity    float64              `json:"humidity"`
	WindSpeed   float64              `json:"wind_speed"`
	Pressure    float64              `json:"pressure"`
	Description string               `json:"description,omitempty"`
	ObservedAt  time.Time            `json:"observed_at"`
	Warehouse   *WarehouseConditions `json:"warehouse,omitempty"`
}

// WarehouseConditions is the derived climate inside a bonded warehouse.
type WarehouseConditions struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	AgingRate   float64 `json:"aging_rate"`
	Optimal     bool    `json:"optimal"`
	Rating      string  `json:"rating"`
}

// ClimateNormals summarises daily station records over a date range.
type ClimateNormals struct {
	Station            string    `json:"station"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	MeanTemperature    float64   `json:"mean_temperature"`
	TotalPrecipitation float64   `json:"total_precipitation"`
	Observations       int       `json:"observations"`
	DailyTemperature   []float64 `json:"daily_temperature,omitempty"`
	DailyPrecipitation []float64 `json:"daily_precipitation,omitempty"`
	// LowConfidence is set when synthetic daily values missed their
	// correlation targets.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// MarineActivity is fishing effort for a sea area over a date range.
type MarineActivity struct {
	Area          string    `json:"area"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Events        int       `json:"events"`
	Vessels       int       `json:"vessels"`
	FishingHours  float64   `json:"fishing_hours"`
	EventsPerDay  float64   `json:"events_per_day"`
	PressureIndex float64   `json:"pressure_index"`
	PressureLevel string    `json:"pressure_level"`
}

// HabitatHealth scores protected species records within a sea area.
type HabitatHealth struct {
	Area          string   `json:"area"`
	Records       int      `json:"records"`
	Species       int      `json:"species"`
	TurtleRecords int      `json:"turtle_records"`
	KeySpecies    []string `json:"key_species,omitempty"`
	QualityScore  float64  `json:"quality_score"`
	Rating        string   `json:"rating"`
}
