package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/stats"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// DefaultClimateBaseURL is the climate data API root.
const DefaultClimateBaseURL = "https://www.ncdc.noaa.gov/cdo-web/api/v2"

const (
	defaultClimateDays = 30
	maxClimateDays     = 366
)

var stationPattern = regexp.MustCompile(`^[A-Z0-9]+:[A-Z0-9_]+$`)

var climateVariables = []string{synth.VarTemperature, synth.VarPrecipitation}

// ClimateCorrelations are the joint targets for synthetic daily records.
func ClimateCorrelations(epsilon float64) (models.CorrelationSpec, error) {
	return models.NewCorrelationSpec(epsilon,
		models.CorrelationTarget{A: synth.VarTemperature, B: synth.VarPrecipitation, Coefficient: -0.25},
	)
}

// ClimateAdapter summarises daily station records. Params: "station"
// (e.g. GHCND:UKM00003162) and optional "days" (1..366, default 30).
type ClimateAdapter struct {
	base
	cfg  SourceConfig
	spec models.CorrelationSpec
}

// NewClimateAdapter builds the adapter.
func NewClimateAdapter(cfg SourceConfig, spec models.CorrelationSpec, deps Dependencies) (*ClimateAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClimateBaseURL
	}
	b, err := newBase("climate", "climate.json", deps)
	if err != nil {
		return nil, err
	}
	return &ClimateAdapter{base: b, cfg: cfg, spec: spec}, nil
}

// climateWindow is the inclusive date range of a request.
type climateWindow struct {
	station    string
	start, end time.Time
	days       int
}

func (a *ClimateAdapter) window(params Params) (climateWindow, error) {
	station := strings.ToUpper(strings.TrimSpace(params["station"]))
	if !stationPattern.MatchString(station) {
		return climateWindow{}, fmt.Errorf("station %q must look like DATASET:ID", params["station"])
	}
	days := defaultClimateDays
	if raw := params["days"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxClimateDays {
			return climateWindow{}, fmt.Errorf("days must be an integer in [1, %d], got %q", maxClimateDays, raw)
		}
		days = n
	}
	end := a.now().UTC().Truncate(24 * time.Hour)
	return climateWindow{
		station: station,
		start:   end.AddDate(0, 0, -(days - 1)),
		end:     end,
		days:    days,
	}, nil
}

// request builds the upstream request for a window.
func (a *ClimateAdapter) request(w climateWindow) (models.RequestSpec, error) {
	spec, err := models.NewRequestSpec(
		strings.TrimRight(a.cfg.BaseURL, "/")+"/data",
		models.TTLLong,
		a.cfg.timeout(),
		models.Param{Name: "datasetid", Value: "GHCND"},
		models.Param{Name: "stationid", Value: w.station},
		models.Param{Name: "startdate", Value: w.start.Format(time.DateOnly)},
		models.Param{Name: "enddate", Value: w.end.Format(time.DateOnly)},
		models.Param{Name: "units", Value: "metric"},
		models.Param{Name: "limit", Value: "1000"},
	)
	if err != nil {
		return models.RequestSpec{}, err
	}
	if a.cfg.APIKey != "" {
		spec = spec.WithHeader("token", a.cfg.APIKey)
	}
	return spec, nil
}

// Fetch returns models.ClimateNormals.
func (a *ClimateAdapter) Fetch(ctx context.Context, params Params) models.FetchResult {
	w, err := a.window(params)
	if err != nil {
		return invalidParams("%v", err)
	}
	spec, err := a.request(w)
	if err != nil {
		return invalidParams("%v", err)
	}
	return a.acquire(ctx, spec,
		func(raw json.RawMessage) (any, error) { return a.normalize(w, raw) },
		func() (any, error) { return a.synthesize(w) },
	)
}

type climateResponse struct {
	Results []struct {
		Date     string  `json:"date"`
		Datatype string  `json:"datatype"`
		Value    float64 `json:"value"`
	} `json:"results"`
}

type dailyRecord struct {
	tavg, tmax, tmin, prcp float64
	hasAvg, hasMax, hasMin bool
}

func (d dailyRecord) temperature() (float64, bool) {
	switch {
	case d.hasAvg:
		return d.tavg, true
	case d.hasMax && d.hasMin:
		return (d.tmax + d.tmin) / 2, true
	default:
		return 0, false
	}
}

func (a *ClimateAdapter) normalize(w climateWindow, raw json.RawMessage) (any, error) {
	var resp climateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	days := make(map[string]*dailyRecord)
	for _, r := range resp.Results {
		date := r.Date[:10]
		rec, ok := days[date]
		if !ok {
			rec = &dailyRecord{}
			days[date] = rec
		}
		switch r.Datatype {
		case "TAVG":
			rec.tavg, rec.hasAvg = r.Value, true
		case "TMAX":
			rec.tmax, rec.hasMax = r.Value, true
		case "TMIN":
			rec.tmin, rec.hasMin = r.Value, true
		case "PRCP":
			rec.prcp = r.Value
		}
	}

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := models.ClimateNormals{
		Station:      w.station,
		StartDate:    w.start,
		EndDate:      w.end,
		Observations: len(dates),
	}
	for _, d := range dates {
		rec := days[d]
		if t, ok := rec.temperature(); ok {
			out.DailyTemperature = append(out.DailyTemperature, t)
		}
		out.DailyPrecipitation = append(out.DailyPrecipitation, rec.prcp)
		out.TotalPrecipitation += rec.prcp
	}
	if len(out.DailyTemperature) == 0 {
		return nil, fmt.Errorf("no temperature records for %s", w.station)
	}
	out.MeanTemperature = round(stats.Mean(out.DailyTemperature), 2)
	out.TotalPrecipitation = round(out.TotalPrecipitation, 1)
	return out, nil
}

func (a *ClimateAdapter) synthesize(w climateWindow) (any, error) {
	series, err := a.deps.Synthesizer.GenerateFrom(w.start, climateVariables, a.spec, w.days)
	if err != nil {
		return nil, err
	}
	temp := series[synth.VarTemperature]
	prcp := series[synth.VarPrecipitation]

	total := 0.0
	for _, v := range prcp.Values {
		total += v
	}
	return models.ClimateNormals{
		Station:            w.station,
		StartDate:          w.start,
		EndDate:            w.end,
		MeanTemperature:    round(stats.Mean(temp.Values), 2),
		TotalPrecipitation: round(total, 1),
		Observations:       w.days,
		DailyTemperature:   temp.Values,
		DailyPrecipitation: prcp.Values,
		LowConfidence:      !temp.Valid || !prcp.Valid,
	}, nil
}
