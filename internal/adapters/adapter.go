// Package adapters turns domain requests into upstream calls and normalizes
// the responses. Every adapter degrades to synthetic data when no live
// payload can be obtained, so callers always receive a value tagged with its
// provenance.
package adapters

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/tides-tomes-go/internal/cache"
	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

const tracerName = "github.com/irfndi/tides-tomes-go/internal/adapters"

// Fallback reasons that do not come from an upstream.RequestError.
const (
	ReasonInvalidPayload = "invalid_payload"
	ReasonCanceled       = "canceled"
	ReasonUnknown        = "unknown"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrInvalidParams is returned, wrapped in a Failed result, for requests an
// adapter cannot even express upstream. No I/O happens in that case.
var ErrInvalidParams = errors.New("invalid adapter parameters")

func invalidParams(format string, args ...any) models.FetchResult {
	return models.Failed(fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...)))
}

// IsInvalidParams reports whether result was rejected before any I/O.
func IsInvalidParams(result models.FetchResult) bool {
	return result.IsFailed() && errors.Is(result.Err, ErrInvalidParams)
}

// Params are the domain parameters of an adapter call.
type Params map[string]string

// ServiceAdapter is implemented once per upstream source.
type ServiceAdapter interface {
	Name() string
	Fetch(ctx context.Context, params Params) models.FetchResult
}

// Executor performs one upstream call with retries.
type Executor interface {
	Execute(ctx context.Context, spec models.RequestSpec) models.FetchResult
}

// SourceConfig locates one upstream API.
type SourceConfig struct {
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	APIKey  string        `mapstructure:"api_key" json:"-"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

func (c SourceConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

// Dependencies are shared by every adapter.
type Dependencies struct {
	Cache       *cache.ResponseCache
	Executor    Executor
	Synthesizer *synth.Synthesizer
	Logger      *logrus.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
}

// PayloadError marks a live response whose shape did not match the schema.
type PayloadError struct {
	Source string
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: invalid payload: %v", e.Source, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ReasonFor maps the error of a Failed result onto a fallback reason.
func ReasonFor(err error) string {
	var payloadErr *PayloadError
	if errors.As(err, &payloadErr) {
		return ReasonInvalidPayload
	}
	if kind := upstream.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}
	return ReasonUnknown
}

// base carries the acquisition pipeline common to all adapters.
type base struct {
	name   string
	deps   Dependencies
	schema *jsonschema.Schema
}

func newBase(name, schemaFile string, deps Dependencies) (base, error) {
	if deps.Cache == nil || deps.Executor == nil || deps.Synthesizer == nil {
		return base{}, fmt.Errorf("%s adapter: cache, executor and synthesizer are required", name)
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
		deps.Logger.SetOutput(io.Discard)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	schema, err := compileSchema(schemaFile)
	if err != nil {
		return base{}, fmt.Errorf("%s adapter: %w", name, err)
	}
	return base{name: name, deps: deps, schema: schema}, nil
}

func compileSchema(file string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", file, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://schemas/" + file
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func (b base) Name() string { return b.name }

func (b base) validate(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return b.schema.Validate(doc)
}

// acquire runs the cache-fronted pipeline: execute, validate, normalize. Only
// normalized values reach the cache. On failure the synthesize callback
// produces the fallback payload.
func (b base) acquire(
	ctx context.Context,
	spec models.RequestSpec,
	normalize func(raw json.RawMessage) (any, error),
	synthesize func() (any, error),
) models.FetchResult {
	ctx, span := b.deps.Tracer.Start(ctx, b.name+".fetch",
		trace.WithAttributes(
			attribute.String("adapter", b.name),
			attribute.String("ttl_class", string(spec.TTLClass())),
		))
	defer span.End()

	result := b.deps.Cache.GetOrFetch(ctx, spec, func(ctx context.Context, spec models.RequestSpec) models.FetchResult {
		res := b.deps.Executor.Execute(ctx, spec)
		if !res.IsLive() {
			return res
		}
		raw, ok := res.Payload.(json.RawMessage)
		if !ok {
			return models.Failed(&PayloadError{Source: b.name, Err: fmt.Errorf("unexpected payload type %T", res.Payload)})
		}
		if err := b.validate(raw); err != nil {
			return models.Failed(&PayloadError{Source: b.name, Err: err})
		}
		value, err := normalize(raw)
		if err != nil {
			return models.Failed(&PayloadError{Source: b.name, Err: err})
		}
		return models.Live(value)
	})

	logger := b.deps.Logger.WithFields(logrus.Fields{
		"component": "adapter",
		"adapter":   b.name,
		"cache_key": spec.CacheKey()[:12],
	})

	if !result.IsFailed() {
		span.SetAttributes(
			attribute.String("provenance", string(result.Provenance)),
			attribute.Bool("cached", result.Cached),
		)
		return result
	}

	reason := ReasonFor(result.Err)
	span.SetAttributes(
		attribute.String("provenance", string(models.ProvenanceFallback)),
		attribute.String("reason", reason),
	)

	payload, err := synthesize()
	if err != nil {
		// Only reachable with a misconfigured synthesizer.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Error("Fallback synthesis failed")
		return models.Failed(fmt.Errorf("%s fallback: %w", b.name, err))
	}

	logger.WithFields(logrus.Fields{
		"provenance": models.ProvenanceFallback,
		"reason":     reason,
	}).WithError(result.Err).Warn("Live data unavailable, serving synthetic fallback")

	return models.Fallback(payload, reason)
}

func (b base) now() time.Time { return b.deps.Now() }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
