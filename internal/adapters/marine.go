package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// DefaultMarineBaseURL is the fishing activity API root.
const DefaultMarineBaseURL = "https://gateway.api.globalfishingwatch.org"

const (
	defaultMarineDays = 30
	maxMarineDays     = 90
	marineEventLimit  = 500
)

// SeaArea is a bounding box of monitored water.
type SeaArea struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether a position lies inside the area.
func (a SeaArea) Contains(lat, lon float64) bool {
	return lat >= a.MinLat && lat <= a.MaxLat && lon >= a.MinLon && lon <= a.MaxLon
}

var seaAreas = map[string]SeaArea{
	"firth_of_forth": {Key: "firth_of_forth", Name: "Firth of Forth", MinLat: 55.9, MaxLat: 56.3, MinLon: -3.8, MaxLon: -2.4},
	"north_sea":      {Key: "north_sea", Name: "Scottish North Sea", MinLat: 55.5, MaxLat: 61.0, MinLon: -2.0, MaxLon: 4.0},
	"moray_firth":    {Key: "moray_firth", Name: "Moray Firth", MinLat: 57.5, MaxLat: 58.5, MinLon: -4.3, MaxLon: -1.8},
	"west_coast":     {Key: "west_coast", Name: "Minch and Hebrides", MinLat: 55.5, MaxLat: 59.0, MinLon: -8.0, MaxLon: -5.0},
}

// SeaAreas returns the monitored areas sorted by key.
func SeaAreas() []SeaArea {
	out := make([]SeaArea, 0, len(seaAreas))
	for _, a := range seaAreas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LookupSeaArea finds an area by key, case-insensitively.
func LookupSeaArea(key string) (SeaArea, bool) {
	a, ok := seaAreas[strings.ToLower(strings.TrimSpace(key))]
	return a, ok
}

var marineVariables = []string{synth.VarFishingPressure}

// MarineCorrelations is the fallback spec; the adapter governs one variable.
func MarineCorrelations(epsilon float64) (models.CorrelationSpec, error) {
	return models.NewCorrelationSpec(epsilon)
}

// PressureIndex scores fishing effort on 0..100.
func PressureIndex(events int, fishingHours float64) float64 {
	return math.Min(100, float64(events)*2+fishingHours*0.5)
}

// PressureLevel buckets the daily event rate.
func PressureLevel(eventsPerDay float64) string {
	switch {
	case eventsPerDay < 5:
		return "low"
	case eventsPerDay < 15:
		return "moderate"
	case eventsPerDay < 30:
		return "high"
	default:
		return "very high"
	}
}

// MarineAdapter reports fishing pressure per sea area. Params: "area" and
// optional "days" (1..90, default 30).
type MarineAdapter struct {
	base
	cfg  SourceConfig
	spec models.CorrelationSpec
}

// NewMarineAdapter builds the adapter.
func NewMarineAdapter(cfg SourceConfig, spec models.CorrelationSpec, deps Dependencies) (*MarineAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMarineBaseURL
	}
	b, err := newBase("marine", "marine.json", deps)
	if err != nil {
		return nil, err
	}
	return &MarineAdapter{base: b, cfg: cfg, spec: spec}, nil
}

type marineWindow struct {
	area       SeaArea
	start, end time.Time
	days       int
}

func (a *MarineAdapter) window(params Params) (marineWindow, error) {
	area, ok := LookupSeaArea(params["area"])
	if !ok {
		return marineWindow{}, fmt.Errorf("unknown sea area %q", params["area"])
	}
	days := defaultMarineDays
	if raw := params["days"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMarineDays {
			return marineWindow{}, fmt.Errorf("days must be an integer in [1, %d], got %q", maxMarineDays, raw)
		}
		days = n
	}
	end := a.now().UTC().Truncate(24 * time.Hour)
	return marineWindow{area: area, start: end.AddDate(0, 0, -days), end: end, days: days}, nil
}

// request builds the upstream request for a window. The bounding box is
// sent upstream and applied again during normalization, so each area has
// its own cache key.
func (a *MarineAdapter) request(w marineWindow) (models.RequestSpec, error) {
	spec, err := models.NewRequestSpec(
		strings.TrimRight(a.cfg.BaseURL, "/")+"/v3/events",
		models.TTLMedium,
		a.cfg.timeout(),
		models.Param{Name: "datasets[0]", Value: "public-global-fishing-events:latest"},
		models.Param{Name: "start-date", Value: w.start.Format(time.DateOnly)},
		models.Param{Name: "end-date", Value: w.end.Format(time.DateOnly)},
		models.Param{Name: "lat-min", Value: formatCoord(w.area.MinLat)},
		models.Param{Name: "lat-max", Value: formatCoord(w.area.MaxLat)},
		models.Param{Name: "lon-min", Value: formatCoord(w.area.MinLon)},
		models.Param{Name: "lon-max", Value: formatCoord(w.area.MaxLon)},
		models.Param{Name: "limit", Value: strconv.Itoa(marineEventLimit)},
		models.Param{Name: "offset", Value: "0"},
	)
	if err != nil {
		return models.RequestSpec{}, err
	}
	if a.cfg.APIKey != "" {
		spec = spec.WithHeader("Authorization", "Bearer "+a.cfg.APIKey)
	}
	return spec, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Fetch returns models.MarineActivity.
func (a *MarineAdapter) Fetch(ctx context.Context, params Params) models.FetchResult {
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

type fishingEvents struct {
	Entries []struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Start  string `json:"start"`
		End    string `json:"end"`
		Vessel struct {
			ID string `json:"id"`
		} `json:"vessel"`
		Position *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"position"`
	} `json:"entries"`
}

func (a *MarineAdapter) normalize(w marineWindow, raw json.RawMessage) (any, error) {
	var resp fishingEvents
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	vessels := make(map[string]struct{})
	events := 0
	hours := 0.0
	for _, e := range resp.Entries {
		if e.Position == nil || !w.area.Contains(e.Position.Lat, e.Position.Lon) {
			continue
		}
		events++
		if e.Vessel.ID != "" {
			vessels[e.Vessel.ID] = struct{}{}
		}
		start, err1 := time.Parse(time.RFC3339, e.Start)
		end, err2 := time.Parse(time.RFC3339, e.End)
		if err1 == nil && err2 == nil && end.After(start) {
			hours += end.Sub(start).Hours()
		}
	}

	perDay := float64(events) / float64(w.days)
	return models.MarineActivity{
		Area:          w.area.Key,
		StartDate:     w.start,
		EndDate:       w.end,
		Events:        events,
		Vessels:       len(vessels),
		FishingHours:  round(hours, 1),
		EventsPerDay:  round(perDay, 2),
		PressureIndex: round(PressureIndex(events, hours), 1),
		PressureLevel: PressureLevel(perDay),
	}, nil
}

// synthesize estimates the index directly; the event rate is scaled so an
// index of 100 sits at the "very high" boundary.
func (a *MarineAdapter) synthesize(w marineWindow) (any, error) {
	sample, err := a.deps.Synthesizer.Point(marineVariables, a.spec, w.end)
	if err != nil {
		return nil, err
	}
	index := round(sample[synth.VarFishingPressure], 1)
	perDay := index * 0.3
	return models.MarineActivity{
		Area:          w.area.Key,
		StartDate:     w.start,
		EndDate:       w.end,
		EventsPerDay:  round(perDay, 2),
		PressureIndex: index,
		PressureLevel: PressureLevel(perDay),
	}, nil
}
