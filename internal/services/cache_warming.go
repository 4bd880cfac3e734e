package services

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/models"
)

// WarmTarget is one adapter call issued during warming.
type WarmTarget struct {
	Adapter adapters.ServiceAdapter
	Params  adapters.Params
}

// WarmReport summarises a warming pass.
type WarmReport struct {
	Targets  int           `json:"targets"`
	Live     int           `json:"live"`
	Fallback int           `json:"fallback"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// CacheWarmingService populates the response cache on startup so the first
// dashboard requests are served from memory.
type CacheWarmingService struct {
	targets     []WarmTarget
	concurrency int
	logger      *logrus.Logger
}

// NewCacheWarmingService creates a warmer. concurrency below 1 means 1.
func NewCacheWarmingService(targets []WarmTarget, concurrency int, logger *logrus.Logger) *CacheWarmingService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CacheWarmingService{targets: targets, concurrency: concurrency, logger: logger}
}

// DefaultWarmTargets covers every region, and every sea area for each of
// the area adapters.
func DefaultWarmTargets(weather adapters.ServiceAdapter, areaAdapters ...adapters.ServiceAdapter) []WarmTarget {
	var targets []WarmTarget
	for _, r := range adapters.Regions() {
		targets = append(targets, WarmTarget{Adapter: weather, Params: adapters.Params{"region": r.Key}})
	}
	for _, adapter := range areaAdapters {
		for _, a := range adapters.SeaAreas() {
			targets = append(targets, WarmTarget{Adapter: adapter, Params: adapters.Params{"area": a.Key}})
		}
	}
	return targets
}

// WarmCache fetches every target once. Only live results land in the cache;
// fallbacks are counted and logged. It returns ctx's error if warming was
// cut short.
func (c *CacheWarmingService) WarmCache(ctx context.Context) (WarmReport, error) {
	start := time.Now()
	c.logger.WithField("targets", len(c.targets)).Info("Starting cache warming")

	var live, fallback, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, t := range c.targets {
		g.Go(func() error {
			result := t.Adapter.Fetch(gctx, t.Params)
			switch result.Provenance {
			case models.ProvenanceLive:
				live.Add(1)
			case models.ProvenanceFallback:
				fallback.Add(1)
			default:
				failed.Add(1)
				c.logger.WithFields(logrus.Fields{
					"adapter": t.Adapter.Name(),
					"params":  t.Params,
				}).WithError(result.Err).Warn("Failed to warm cache entry")
			}
			return nil
		})
	}
	_ = g.Wait()

	report := WarmReport{
		Targets:  len(c.targets),
		Live:     int(live.Load()),
		Fallback: int(fallback.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	c.logger.WithFields(logrus.Fields{
		"live":     report.Live,
		"fallback": report.Fallback,
		"failed":   report.Failed,
		"duration": report.Duration,
	}).Info("Cache warming completed")

	return report, ctx.Err()
}
