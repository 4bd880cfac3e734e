package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/cache"
	"github.com/irfndi/tides-tomes-go/internal/cascade"
	"github.com/irfndi/tides-tomes-go/internal/services"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

type Config struct {
	Environment    string                           `mapstructure:"environment"`
	LogLevel       string                           `mapstructure:"log_level"`
	Server         ServerConfig                     `mapstructure:"server"`
	Upstream       UpstreamConfig                   `mapstructure:"upstream"`
	Retry          upstream.Config                  `mapstructure:"retry"`
	CircuitBreaker upstream.CircuitBreakerConfig    `mapstructure:"circuit_breaker"`
	Cache          CacheConfig                      `mapstructure:"cache"`
	Synthetic      SyntheticConfig                  `mapstructure:"synthetic"`
	Cascade        CascadeConfig                    `mapstructure:"cascade"`
	Resources      services.ResourceOptimizerConfig `mapstructure:"resources"`
	Telemetry      TelemetryConfig                  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type UpstreamConfig struct {
	Weather adapters.SourceConfig `mapstructure:"weather"`
	Climate adapters.SourceConfig `mapstructure:"climate"`
	Marine  adapters.SourceConfig `mapstructure:"marine"`
	Habitat adapters.SourceConfig `mapstructure:"habitat"`
}

type CacheConfig struct {
	TTL           cache.TTLPolicy `mapstructure:"ttl"`
	SweepInterval time.Duration   `mapstructure:"sweep_interval"`
	WarmOnStart   bool            `mapstructure:"warm_on_start"`
}

type SyntheticConfig struct {
	Seed       uint64        `mapstructure:"seed"`
	Epsilon    float64       `mapstructure:"epsilon"`
	Window     int           `mapstructure:"window"`
	Degree     int           `mapstructure:"degree"`
	MaxRetries int           `mapstructure:"max_retries"`
	Length     int           `mapstructure:"length"`
	MaxLength  int           `mapstructure:"max_length"`
	Step       time.Duration `mapstructure:"step"`
}

type CascadeConfig struct {
	Preset string `mapstructure:"preset"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // otlp or stdout
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials usually arrive under their provider's conventional names
	for key, env := range map[string]string{
		"upstream.weather.api_key": "WEATHERBIT_API_KEY",
		"upstream.climate.api_key": "NOAA_API_KEY",
		"upstream.marine.api_key":  "GFW_API_TOKEN",
	} {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("retry.base_delay must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry.max_delay must not be below retry.base_delay"))
	}
	for name, src := range map[string]adapters.SourceConfig{
		"weather": c.Upstream.Weather, "climate": c.Upstream.Climate,
		"marine": c.Upstream.Marine, "habitat": c.Upstream.Habitat,
	} {
		if src.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("upstream.%s.timeout must be positive", name))
		}
	}
	if c.Cache.TTL.Short <= 0 || c.Cache.TTL.Medium <= 0 || c.Cache.TTL.Long <= 0 {
		errs = append(errs, errors.New("cache.ttl durations must be positive"))
	}
	if c.Synthetic.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("synthetic.epsilon must not be negative, got %v", c.Synthetic.Epsilon))
	}
	if c.Synthetic.Window < 5 || c.Synthetic.Window%2 == 0 || c.Synthetic.Window <= c.Synthetic.Degree {
		errs = append(errs, fmt.Errorf("synthetic.window must be odd, at least 5 and above the degree, got %d", c.Synthetic.Window))
	}
	if c.Synthetic.Length < 1 || c.Synthetic.Length > c.Synthetic.MaxLength {
		errs = append(errs, fmt.Errorf("synthetic.length must be in 1..%d, got %d", c.Synthetic.MaxLength, c.Synthetic.Length))
	}
	if _, ok := cascade.Preset(c.Cascade.Preset); !ok {
		errs = append(errs, fmt.Errorf("cascade.preset %q is not one of %v", c.Cascade.Preset, cascade.PresetNames()))
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "otlp", "stdout":
		default:
			errs = append(errs, fmt.Errorf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter))
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be in [0,1], got %v", c.Telemetry.SampleRatio))
		}
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Upstream sources
	v.SetDefault("upstream.weather.base_url", adapters.DefaultWeatherBaseURL)
	v.SetDefault("upstream.weather.api_key", "")
	v.SetDefault("upstream.weather.timeout", "10s")
	v.SetDefault("upstream.climate.base_url", adapters.DefaultClimateBaseURL)
	v.SetDefault("upstream.climate.api_key", "")
	v.SetDefault("upstream.climate.timeout", "15s")
	v.SetDefault("upstream.marine.base_url", adapters.DefaultMarineBaseURL)
	v.SetDefault("upstream.marine.api_key", "")
	v.SetDefault("upstream.marine.timeout", "15s")
	v.SetDefault("upstream.habitat.base_url", adapters.DefaultHabitatBaseURL)
	v.SetDefault("upstream.habitat.timeout", "30s")

	// Retry
	retry := upstream.DefaultConfig()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.base_delay", retry.BaseDelay.String())
	v.SetDefault("retry.max_delay", retry.MaxDelay.String())
	v.SetDefault("retry.rate_limit_delay", retry.RateLimitDelay.String())
	v.SetDefault("retry.user_agent", retry.UserAgent)

	// Circuit breaker
	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 1)
	v.SetDefault("circuit_breaker.timeout", "60s")
	v.SetDefault("circuit_breaker.max_requests", 1)

	// Cache
	ttl := cache.DefaultTTLPolicy()
	v.SetDefault("cache.ttl.short", ttl.Short.String())
	v.SetDefault("cache.ttl.medium", ttl.Medium.String())
	v.SetDefault("cache.ttl.long", ttl.Long.String())
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.warm_on_start", false)

	// Synthetic data
	v.SetDefault("synthetic.seed", 20240601)
	v.SetDefault("synthetic.epsilon", 0.05)
	v.SetDefault("synthetic.window", 7)
	v.SetDefault("synthetic.degree", 2)
	v.SetDefault("synthetic.max_retries", 5)
	v.SetDefault("synthetic.length", 365)
	v.SetDefault("synthetic.max_length", 3650)
	v.SetDefault("synthetic.step", "24h")

	// Cascade
	v.SetDefault("cascade.preset", cascade.PresetMarineEconomy)

	// Resources
	v.SetDefault("resources.cpu_threshold", 80.0)
	v.SetDefault("resources.memory_threshold", 85.0)
	v.SetDefault("resources.min_workers", 2)
	v.SetDefault("resources.max_workers", 16)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "tides-tomes")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}
