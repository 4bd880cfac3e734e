package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/api"
	"github.com/irfndi/tides-tomes-go/internal/api/handlers"
	"github.com/irfndi/tides-tomes-go/internal/cache"
	"github.com/irfndi/tides-tomes-go/internal/cascade"
	"github.com/irfndi/tides-tomes-go/internal/config"
	"github.com/irfndi/tides-tomes-go/internal/logging"
	"github.com/irfndi/tides-tomes-go/internal/services"
	"github.com/irfndi/tides-tomes-go/internal/synth"
	"github.com/irfndi/tides-tomes-go/internal/telemetry"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

const (
	serviceName        = "tides-tomes"
	metricsRefreshRate = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// application is the wired service graph.
type application struct {
	router    *gin.Engine
	cache     *cache.ResponseCache
	optimizer *services.ResourceOptimizer
	warmer    *services.CacheWarmingService
}

func run() error {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	app.cache.StartJanitor(ctx, cfg.Cache.SweepInterval)
	app.optimizer.Start(ctx, metricsRefreshRate)
	if cfg.Cache.WarmOnStart {
		go func() {
			if _, err := app.warmer.WarmCache(ctx); err != nil {
				logger.WithError(err).Warn("Cache warming interrupted")
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logging.LogShutdown(logger, serviceName, "signal received")
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// newApplication wires every component from cfg. Background loops are not
// started here.
func newApplication(cfg *config.Config, logger *logrus.Logger) (*application, error) {
	var execOpts []upstream.Option
	var breakers handlers.BreakerStatsProvider
	if cfg.CircuitBreaker.Enabled {
		manager := upstream.NewCircuitBreakerManager(cfg.CircuitBreaker, logger, time.Now)
		execOpts = append(execOpts, upstream.WithCircuitBreakers(manager))
		breakers = manager
	}
	executor := upstream.NewExecutor(cfg.Retry, &http.Client{}, logger, execOpts...)
	responseCache := cache.NewResponseCache(cfg.Cache.TTL, logger)

	synthesizer, err := synth.New(synth.Config{
		Seed:       cfg.Synthetic.Seed,
		MaxRetries: cfg.Synthetic.MaxRetries,
		Window:     cfg.Synthetic.Window,
		Degree:     cfg.Synthetic.Degree,
		Step:       cfg.Synthetic.Step,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	deps := adapters.Dependencies{
		Cache:       responseCache,
		Executor:    executor,
		Synthesizer: synthesizer,
		Logger:      logger,
	}
	weatherSpec, err := adapters.WeatherCorrelations(cfg.Synthetic.Epsilon)
	if err != nil {
		return nil, err
	}
	climateSpec, err := adapters.ClimateCorrelations(cfg.Synthetic.Epsilon)
	if err != nil {
		return nil, err
	}
	marineSpec, err := adapters.MarineCorrelations(cfg.Synthetic.Epsilon)
	if err != nil {
		return nil, err
	}
	habitatSpec, err := adapters.HabitatCorrelations(cfg.Synthetic.Epsilon)
	if err != nil {
		return nil, err
	}
	weather, err := adapters.NewWeatherAdapter(cfg.Upstream.Weather, weatherSpec, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather adapter: %w", err)
	}
	climate, err := adapters.NewClimateAdapter(cfg.Upstream.Climate, climateSpec, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create climate adapter: %w", err)
	}
	marine, err := adapters.NewMarineAdapter(cfg.Upstream.Marine, marineSpec, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create marine adapter: %w", err)
	}
	habitat, err := adapters.NewHabitatAdapter(cfg.Upstream.Habitat, habitatSpec, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create habitat adapter: %w", err)
	}

	stages, ok := cascade.Preset(cfg.Cascade.Preset)
	if !ok {
		return nil, fmt.Errorf("unknown cascade preset %q", cfg.Cascade.Preset)
	}
	calculator, err := cascade.NewCalculator(stages...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cascade calculator: %w", err)
	}

	optimizer := services.NewResourceOptimizer(cfg.Resources, logger)
	acquisition := services.NewAcquisitionService(weather, marine, calculator, optimizer, logger,
		services.WithHabitat(habitat))
	warmer := services.NewCacheWarmingService(
		services.DefaultWarmTargets(weather, marine, habitat),
		optimizer.Optimal().MaxWarmers,
		logger,
	)

	router := api.NewRouter(api.Dependencies{
		Logger:           logger,
		Weather:          weather,
		Marine:           marine,
		Climate:          climate,
		Habitat:          habitat,
		Snapshots:        acquisition,
		Cache:            responseCache,
		System:           optimizer,
		Breakers:         breakers,
		Synth:            synthesizer,
		CascadePreset:    cfg.Cascade.Preset,
		SyntheticEpsilon: cfg.Synthetic.Epsilon,
		SyntheticLength:  cfg.Synthetic.Length,
		SyntheticMax:     cfg.Synthetic.MaxLength,
		ServiceName:      cfg.Telemetry.ServiceName,
		Version:          telemetry.ServiceVersion,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	})

	return &application{
		router:    router,
		cache:     responseCache,
		optimizer: optimizer,
		warmer:    warmer,
	}, nil
}
