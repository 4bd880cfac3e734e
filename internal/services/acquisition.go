package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/cascade"
	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/stats"
)

const tracerName = "github.com/irfndi/tides-tomes-go/internal/services"

// DefaultSeaArea is used when a snapshot request names no area.
const DefaultSeaArea = "firth_of_forth"

// ErrNoEnvironmentalData means no region produced an observation, live or
// synthetic, so no score can be derived.
var ErrNoEnvironmentalData = errors.New("no environmental data available")

// EnvironmentalScore rates marine conditions on 0..100 from mean temperature
// and humidity. 8.5°C and 75% score 100.
func EnvironmentalScore(temperature, humidity float64) float64 {
	tempScore := 100 * math.Exp(-math.Pow((temperature-8.5)/5, 2))
	humidityScore := 100 * math.Exp(-math.Pow((humidity-75)/15, 2))
	return stats.Clamp(0.6*tempScore+0.4*humidityScore, 0, 100)
}

// EcosystemScore blends environmental conditions with fishing pressure.
func EcosystemScore(environmental, pressureIndex float64) float64 {
	return stats.Clamp(0.75*environmental+0.25*(100-pressureIndex), 0, 100)
}

// BlendHabitat folds protected habitat quality into an ecosystem score.
func BlendHabitat(ecosystem, habitatQuality float64) float64 {
	return stats.Clamp(0.8*ecosystem+0.2*habitatQuality, 0, 100)
}

// SnapshotRequest selects what a snapshot covers. Empty fields take defaults.
type SnapshotRequest struct {
	Regions []string `json:"regions,omitempty"`
	Area    string   `json:"area,omitempty"`
}

// RegionReading is one region's weather result.
type RegionReading struct {
	Region      string                     `json:"region"`
	Provenance  models.Provenance          `json:"provenance"`
	Reason      string                     `json:"reason,omitempty"`
	Cached      bool                       `json:"cached"`
	Observation *models.WeatherObservation `json:"observation,omitempty"`
}

// MarineReading is the sea area's fishing pressure result.
type MarineReading struct {
	Area       string                 `json:"area"`
	Provenance models.Provenance      `json:"provenance"`
	Reason     string                 `json:"reason,omitempty"`
	Cached     bool                   `json:"cached"`
	Activity   *models.MarineActivity `json:"activity,omitempty"`
}

// HabitatReading is the sea area's protected habitat result.
type HabitatReading struct {
	Area       string                `json:"area"`
	Provenance models.Provenance     `json:"provenance"`
	Reason     string                `json:"reason,omitempty"`
	Cached     bool                  `json:"cached"`
	Health     *models.HabitatHealth `json:"health,omitempty"`
}

// Snapshot is a point-in-time view of every monitored source and the
// economic cascade driven by it.
type Snapshot struct {
	ID                 string                    `json:"id"`
	GeneratedAt        time.Time                 `json:"generated_at"`
	Regions            []RegionReading           `json:"regions"`
	Marine             MarineReading             `json:"marine"`
	Habitat            *HabitatReading           `json:"habitat,omitempty"`
	EnvironmentalScore float64                   `json:"environmental_score"`
	EcosystemScore     float64                   `json:"ecosystem_score"`
	Cascade            cascade.Result            `json:"cascade"`
	Provenance         map[models.Provenance]int `json:"provenance"`
	Degraded           bool                      `json:"degraded"`
}

// AcquisitionService fans adapter calls out per region and folds the
// results into a Snapshot.
type AcquisitionService struct {
	weather    adapters.ServiceAdapter
	marine     adapters.ServiceAdapter
	habitat    adapters.ServiceAdapter
	calculator *cascade.Calculator
	optimizer  *ResourceOptimizer
	logger     *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// AcquisitionOption customises an AcquisitionService.
type AcquisitionOption func(*AcquisitionService)

// WithHabitat adds protected habitat quality to the ecosystem score.
func WithHabitat(habitat adapters.ServiceAdapter) AcquisitionOption {
	return func(s *AcquisitionService) { s.habitat = habitat }
}

// NewAcquisitionService wires the service. optimizer may be nil, in which
// case every region is fetched at once.
func NewAcquisitionService(
	weather, marine adapters.ServiceAdapter,
	calculator *cascade.Calculator,
	optimizer *ResourceOptimizer,
	logger *logrus.Logger,
	opts ...AcquisitionOption,
) *AcquisitionService {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	s := &AcquisitionService{
		weather:    weather,
		marine:     marine,
		calculator: calculator,
		optimizer:  optimizer,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculator returns the cascade the snapshot feeds.
func (s *AcquisitionService) Calculator() *cascade.Calculator { return s.calculator }

// Snapshot fetches all requested regions and the sea area concurrently. It
// fails only for invalid requests or when no region yields data at all.
func (s *AcquisitionService) Snapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error) {
	regions, area, err := s.resolve(req)
	if err != nil {
		return Snapshot{}, err
	}

	ctx, span := s.tracer.Start(ctx, "acquisition.snapshot",
		trace.WithAttributes(
			attribute.Int("regions", len(regions)),
			attribute.String("area", area),
		))
	defer span.End()

	readings := make([]RegionReading, len(regions))
	var marine, habitat models.FetchResult
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if s.optimizer != nil {
		g.SetLimit(s.optimizer.MaxFanOut())
	}
	for i, region := range regions {
		g.Go(func() error {
			result := s.weather.Fetch(gctx, adapters.Params{"region": region})
			if adapters.IsInvalidParams(result) {
				return result.Err
			}
			reading := RegionReading{Region: region, Provenance: result.Provenance, Reason: result.Reason, Cached: result.Cached}
			if obs, ok := result.Payload.(models.WeatherObservation); ok {
				reading.Observation = &obs
			}
			readings[i] = reading
			return nil
		})
	}
	g.Go(func() error {
		result := s.marine.Fetch(gctx, adapters.Params{"area": area})
		if adapters.IsInvalidParams(result) {
			return result.Err
		}
		mu.Lock()
		marine = result
		mu.Unlock()
		return nil
	})
	if s.habitat != nil {
		g.Go(func() error {
			result := s.habitat.Fetch(gctx, adapters.Params{"area": area})
			if adapters.IsInvalidParams(result) {
				return result.Err
			}
			mu.Lock()
			habitat = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}

	snap := Snapshot{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Regions:     readings,
		Marine:      MarineReading{Area: area, Provenance: marine.Provenance, Reason: marine.Reason, Cached: marine.Cached},
		Provenance:  make(map[models.Provenance]int),
	}

	var temps, humidities []float64
	for _, r := range readings {
		snap.Provenance[r.Provenance]++
		if r.Observation != nil {
			temps = append(temps, r.Observation.Temperature)
			humidities = append(humidities, r.Observation.Humidity)
		}
	}
	snap.Provenance[marine.Provenance]++
	sources := len(readings) + 1
	if s.habitat != nil {
		snap.Habitat = &HabitatReading{Area: area, Provenance: habitat.Provenance, Reason: habitat.Reason, Cached: habitat.Cached}
		snap.Provenance[habitat.Provenance]++
		sources++
	}
	snap.Degraded = snap.Provenance[models.ProvenanceLive] < sources

	if len(temps) == 0 {
		return Snapshot{}, ErrNoEnvironmentalData
	}
	snap.EnvironmentalScore = round2(EnvironmentalScore(stats.Mean(temps), stats.Mean(humidities)))

	pressure := 0.0
	if activity, ok := marine.Payload.(models.MarineActivity); ok {
		snap.Marine.Activity = &activity
		pressure = activity.PressureIndex
	}
	ecosystem := EcosystemScore(snap.EnvironmentalScore, pressure)
	if snap.Habitat != nil {
		if health, ok := habitat.Payload.(models.HabitatHealth); ok {
			snap.Habitat.Health = &health
			ecosystem = BlendHabitat(ecosystem, health.QualityScore)
		}
	}
	snap.EcosystemScore = round2(ecosystem)

	result, err := s.calculator.Evaluate(snap.EcosystemScore)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cascade: %w", err)
	}
	snap.Cascade = result

	span.SetAttributes(
		attribute.Bool("degraded", snap.Degraded),
		attribute.Float64("ecosystem_score", snap.EcosystemScore),
	)
	s.logger.WithFields(logrus.Fields{
		"component":       "acquisition",
		"snapshot_id":     snap.ID,
		"live":            snap.Provenance[models.ProvenanceLive],
		"fallback":        snap.Provenance[models.ProvenanceFallback],
		"failed":          snap.Provenance[models.ProvenanceFailed],
		"ecosystem_score": snap.EcosystemScore,
	}).Info("Snapshot assembled")

	return snap, nil
}

func (s *AcquisitionService) resolve(req SnapshotRequest) ([]string, string, error) {
	var regions []string
	if len(req.Regions) == 0 {
		for _, r := range adapters.Regions() {
			regions = append(regions, r.Key)
		}
	} else {
		seen := make(map[string]struct{}, len(req.Regions))
		for _, name := range req.Regions {
			r, ok := adapters.LookupRegion(name)
			if !ok {
				return nil, "", fmt.Errorf("%w: unknown region %q", adapters.ErrInvalidParams, name)
			}
			if _, dup := seen[r.Key]; dup {
				continue
			}
			seen[r.Key] = struct{}{}
			regions = append(regions, r.Key)
		}
	}

	area := req.Area
	if area == "" {
		area = DefaultSeaArea
	}
	a, ok := adapters.LookupSeaArea(area)
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown sea area %q", adapters.ErrInvalidParams, area)
	}
	return regions, a.Key, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
