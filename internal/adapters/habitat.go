package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// DefaultHabitatBaseURL is the Scottish Priority Marine Features feature
// service. It needs no credentials.
const DefaultHabitatBaseURL = "https://services1.arcgis.com/LM9GyVFsughzHdbO/ArcGIS/rest/services/GeMS___Scottish_Priority_Marine_Features/FeatureServer"

// speciesLayer is the feature layer holding species records.
const speciesLayer = "1"

var turtleGenera = []string{"caretta", "dermochelys", "chelonia", "lepidochelys"}

// Habitat quality points. Temperature and protection status are fixed for
// Scottish priority features.
const (
	habitatTemperaturePoints = 20
	habitatProtectionPoints  = 15
)

var habitatVariables = []string{synth.VarHabitatQuality}

// HabitatCorrelations is the fallback spec; the adapter governs one variable.
func HabitatCorrelations(epsilon float64) (models.CorrelationSpec, error) {
	return models.NewCorrelationSpec(epsilon)
}

// HabitatQuality scores an area on 0..90 from species diversity and turtle
// presence.
func HabitatQuality(species, turtleRecords int) float64 {
	var diversity, turtles float64
	switch {
	case species > 100:
		diversity = 30
	case species > 50:
		diversity = 20
	default:
		diversity = 10
	}
	switch {
	case turtleRecords > 5:
		turtles = 25
	case turtleRecords > 0:
		turtles = 15
	default:
		turtles = 5
	}
	return diversity + turtles + habitatTemperaturePoints + habitatProtectionPoints
}

// HabitatRating buckets a quality score.
func HabitatRating(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func isTurtle(scientific, common string) bool {
	if strings.Contains(strings.ToLower(common), "turtle") {
		return true
	}
	s := strings.ToLower(scientific)
	for _, genus := range turtleGenera {
		if strings.Contains(s, genus) {
			return true
		}
	}
	return false
}

// HabitatAdapter reports protected species health per sea area. Params:
// "area".
type HabitatAdapter struct {
	base
	cfg  SourceConfig
	spec models.CorrelationSpec
}

// NewHabitatAdapter builds the adapter.
func NewHabitatAdapter(cfg SourceConfig, spec models.CorrelationSpec, deps Dependencies) (*HabitatAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHabitatBaseURL
	}
	b, err := newBase("habitat", "habitat.json", deps)
	if err != nil {
		return nil, err
	}
	return &HabitatAdapter{base: b, cfg: cfg, spec: spec}, nil
}

// request queries species records intersecting the area's envelope.
func (a *HabitatAdapter) request(area SeaArea) (models.RequestSpec, error) {
	envelope := strings.Join([]string{
		formatCoord(area.MinLon), formatCoord(area.MinLat),
		formatCoord(area.MaxLon), formatCoord(area.MaxLat),
	}, ",")
	return models.NewRequestSpec(
		strings.TrimRight(a.cfg.BaseURL, "/")+"/"+speciesLayer+"/query",
		models.TTLLong,
		a.cfg.timeout(),
		models.Param{Name: "where", Value: "1=1"},
		models.Param{Name: "outFields", Value: "OBJECTID,SCIENTIFIC,COMMON_NAME,STATUS"},
		models.Param{Name: "geometry", Value: envelope},
		models.Param{Name: "geometryType", Value: "esriGeometryEnvelope"},
		models.Param{Name: "inSR", Value: "4326"},
		models.Param{Name: "spatialRel", Value: "esriSpatialRelIntersects"},
		models.Param{Name: "returnGeometry", Value: "false"},
		models.Param{Name: "f", Value: "json"},
	)
}

// Fetch returns models.HabitatHealth.
func (a *HabitatAdapter) Fetch(ctx context.Context, params Params) models.FetchResult {
	area, ok := LookupSeaArea(params["area"])
	if !ok {
		return invalidParams("unknown sea area %q", params["area"])
	}
	spec, err := a.request(area)
	if err != nil {
		return invalidParams("%v", err)
	}
	return a.acquire(ctx, spec,
		func(raw json.RawMessage) (any, error) { return normalizeHabitat(area, raw) },
		func() (any, error) { return a.synthesize(area) },
	)
}

type speciesFeatures struct {
	Features []struct {
		Attributes struct {
			ObjectID   int64  `json:"OBJECTID"`
			Scientific string `json:"SCIENTIFIC"`
			CommonName string `json:"COMMON_NAME"`
		} `json:"attributes"`
	} `json:"features"`
}

func normalizeHabitat(area SeaArea, raw json.RawMessage) (any, error) {
	var resp speciesFeatures
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(resp.Features))
	counts := make(map[string]int)
	records, turtles := 0, 0
	for _, f := range resp.Features {
		attrs := f.Attributes
		if attrs.ObjectID != 0 {
			if _, dup := seen[attrs.ObjectID]; dup {
				continue
			}
			seen[attrs.ObjectID] = struct{}{}
		}
		records++
		if name := strings.TrimSpace(attrs.Scientific); name != "" {
			counts[name]++
		}
		if isTurtle(attrs.Scientific, attrs.CommonName) {
			turtles++
		}
	}

	score := HabitatQuality(len(counts), turtles)
	return models.HabitatHealth{
		Area:          area.Key,
		Records:       records,
		Species:       len(counts),
		TurtleRecords: turtles,
		KeySpecies:    keySpecies(counts, 3),
		QualityScore:  score,
		Rating:        HabitatRating(score),
	}, nil
}

// keySpecies returns the n most recorded species, ties broken by name.
func keySpecies(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func (a *HabitatAdapter) synthesize(area SeaArea) (any, error) {
	sample, err := a.deps.Synthesizer.Point(habitatVariables, a.spec, a.now())
	if err != nil {
		return nil, fmt.Errorf("habitat quality: %w", err)
	}
	score := round(sample[synth.VarHabitatQuality], 1)
	return models.HabitatHealth{
		Area:         area.Key,
		QualityScore: score,
		Rating:       HabitatRating(score),
	}, nil
}
