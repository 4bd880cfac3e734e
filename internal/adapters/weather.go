package adapters

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/stats"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// DefaultWeatherBaseURL is the current-conditions API root.
const DefaultWeatherBaseURL = "https://api.weatherbit.io/v2.0"

// Region is a monitored whisky-producing location.
type Region struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Coastal   bool    `json:"coastal"`

	// Offsets from the national profile used when synthesizing.
	TemperatureOffset float64 `json:"-"`
	HumidityOffset    float64 `json:"-"`
	WindOffset        float64 `json:"-"`
}

var regions = map[string]Region{
	"edinburgh": {Key: "edinburgh", Name: "Edinburgh", Latitude: 55.9533, Longitude: -3.1883, Coastal: true,
		TemperatureOffset: 0.5, HumidityOffset: 3, WindOffset: 0.2},
	"glasgow": {Key: "glasgow", Name: "Glasgow", Latitude: 55.8642, Longitude: -4.2518,
		TemperatureOffset: 0.2, HumidityOffset: 1, WindOffset: 0.5},
	"islay": {Key: "islay", Name: "Islay", Latitude: 55.7558, Longitude: -6.2094, Coastal: true,
		TemperatureOffset: 2.0, HumidityOffset: 7, WindOffset: 2.5},
	"aberlour": {Key: "aberlour", Name: "Aberlour (Speyside)", Latitude: 57.4833, Longitude: -3.2167,
		TemperatureOffset: -1.5, HumidityOffset: -3, WindOffset: -1.0},
	"dufftown": {Key: "dufftown", Name: "Dufftown (Speyside)", Latitude: 57.45, Longitude: -3.1333,
		TemperatureOffset: -1.2, HumidityOffset: -2, WindOffset: -1.2},
}

// Regions returns the monitored regions sorted by key.
func Regions() []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LookupRegion finds a region by key, case-insensitively.
func LookupRegion(key string) (Region, bool) {
	r, ok := regions[strings.ToLower(strings.TrimSpace(key))]
	return r, ok
}

var weatherVariables = []string{synth.VarTemperature, synth.VarHumidity, synth.VarWindSpeed, synth.VarPressure}

// WeatherCorrelations are the joint targets for synthetic current weather.
func WeatherCorrelations(epsilon float64) (models.CorrelationSpec, error) {
	return models.NewCorrelationSpec(epsilon,
		models.CorrelationTarget{A: synth.VarTemperature, B: synth.VarHumidity, Coefficient: -0.45},
		models.CorrelationTarget{A: synth.VarHumidity, B: synth.VarWindSpeed, Coefficient: 0.30},
		models.CorrelationTarget{A: synth.VarWindSpeed, B: synth.VarPressure, Coefficient: -0.50},
	)
}

// WeatherAdapter serves current conditions per region. Params: "region".
type WeatherAdapter struct {
	base
	cfg  SourceConfig
	spec models.CorrelationSpec
}

// NewWeatherAdapter builds the adapter; spec governs its synthetic fallback.
func NewWeatherAdapter(cfg SourceConfig, spec models.CorrelationSpec, deps Dependencies) (*WeatherAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherBaseURL
	}
	b, err := newBase("weather", "weather.json", deps)
	if err != nil {
		return nil, err
	}
	return &WeatherAdapter{base: b, cfg: cfg, spec: spec}, nil
}

// Request builds the upstream request for a region.
func (a *WeatherAdapter) Request(region Region) (models.RequestSpec, error) {
	spec, err := models.NewRequestSpec(
		strings.TrimRight(a.cfg.BaseURL, "/")+"/current",
		models.TTLShort,
		a.cfg.timeout(),
		models.Param{Name: "lat", Value: strconv.FormatFloat(region.Latitude, 'f', 4, 64)},
		models.Param{Name: "lon", Value: strconv.FormatFloat(region.Longitude, 'f', 4, 64)},
		models.Param{Name: "units", Value: "M"},
	)
	if err != nil {
		return models.RequestSpec{}, err
	}
	if a.cfg.APIKey != "" {
		spec = spec.WithQuerySecret("key", a.cfg.APIKey)
	}
	return spec, nil
}

// Fetch returns a models.WeatherObservation.
func (a *WeatherAdapter) Fetch(ctx context.Context, params Params) models.FetchResult {
	region, ok := LookupRegion(params["region"])
	if !ok {
		return invalidParams("unknown region %q", params["region"])
	}
	spec, err := a.Request(region)
	if err != nil {
		return invalidParams("%v", err)
	}

	return a.acquire(ctx, spec,
		func(raw json.RawMessage) (any, error) { return a.normalize(region, raw) },
		func() (any, error) { return a.synthesize(region) },
	)
}

type weatherbitResponse struct {
	Data []struct {
		Temp     float64 `json:"temp"`
		RH       float64 `json:"rh"`
		WindSpd  float64 `json:"wind_spd"`
		Pres     float64 `json:"pres"`
		ObTime   string  `json:"ob_time"`
		CityName string  `json:"city_name"`
		Weather  struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"data"`
}

func (a *WeatherAdapter) normalize(region Region, raw json.RawMessage) (any, error) {
	var resp weatherbitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	d := resp.Data[0]

	observed, err := time.Parse("2006-01-02 15:04", d.ObTime)
	if err != nil {
		observed = a.now()
	}
	obs := models.WeatherObservation{
		Region:      region.Key,
		Temperature: d.Temp,
		Humidity:    d.RH,
		WindSpeed:   d.WindSpd,
		Pressure:    d.Pres,
		Description: d.Weather.Description,
		ObservedAt:  observed.UTC(),
	}
	obs.Warehouse = Warehouse(region, obs.Temperature, obs.Humidity, obs.WindSpeed, obs.ObservedAt)
	return obs, nil
}

func (a *WeatherAdapter) synthesize(region Region) (any, error) {
	at := a.now()
	sample, err := a.deps.Synthesizer.Point(weatherVariables, a.spec, at)
	if err != nil {
		return nil, err
	}
	obs := models.WeatherObservation{
		Region:      region.Key,
		Temperature: round(sample[synth.VarTemperature]+region.TemperatureOffset, 1),
		Humidity:    round(stats.Clamp(sample[synth.VarHumidity]+region.HumidityOffset, 0, 100), 0),
		WindSpeed:   round(math.Max(0, sample[synth.VarWindSpeed]+region.WindOffset), 1),
		Pressure:    round(sample[synth.VarPressure], 0),
		Description: "synthetic estimate",
		ObservedAt:  at.UTC(),
	}
	obs.Warehouse = Warehouse(region, obs.Temperature, obs.Humidity, obs.WindSpeed, obs.ObservedAt)
	return obs, nil
}

// Season names a meteorological season in the northern hemisphere.
func Season(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

var seasonalOffset = map[string]float64{
	"winter": 4.0,
	"spring": 2.5,
	"summer": 1.0,
	"autumn": 3.0,
}

// Warehouse applies the stone-warehouse thermal model to ambient readings.
// Stone walls damp the ambient swing towards a seasonal base, coastal sites
// lose heat to marine wind and humid air reads slightly warmer.
func Warehouse(region Region, ambient, humidity, wind float64, at time.Time) *models.WarehouseConditions {
	damping := 0.75
	if region.Coastal {
		damping = 0.70
	}
	baseTemp := 12.5 + seasonalOffset[Season(at)]
	temp := ambient*damping + baseTemp*(1-damping)
	if region.Coastal {
		temp -= wind * 0.15
	}
	temp *= 1 + (humidity-70)*0.002

	tempOK := temp >= 10 && temp <= 18
	humidityOK := humidity >= 60 && humidity <= 80
	rating := "Suboptimal"
	switch {
	case tempOK && humidityOK:
		rating = "Excellent"
	case tempOK || humidityOK:
		rating = "Good"
	}

	return &models.WarehouseConditions{
		Temperature: round(temp, 1),
		Humidity:    humidity,
		AgingRate:   round(AgingRate(temp, humidity), 3),
		Optimal:     tempOK && humidityOK,
		Rating:      rating,
	}
}

// AgingRate is the maturation speed relative to 13.5°C and 70% humidity.
// 1.0 is optimal; larger values mean faster aging.
func AgingRate(temp, humidity float64) float64 {
	return (1 + math.Abs(temp-13.5)*0.05) * (1 + math.Abs(humidity-70)*0.002)
}
