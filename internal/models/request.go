package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/irfndi/tides-tomes-go/internal/utils"
)

// TTLClass declares how volatile the data behind a request is.
type TTLClass string

const (
	TTLShort  TTLClass = "short"  // volatile data, e.g. current weather
	TTLMedium TTLClass = "medium" // marine activity summaries
	TTLLong   TTLClass = "long"   // near-static reference data
)

// Valid reports whether c is one of the declared TTL classes.
func (c TTLClass) Valid() bool {
	switch c {
	case TTLShort, TTLMedium, TTLLong:
		return true
	default:
		return false
	}
}

// Param is a single named request parameter.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RequestSpec describes one outbound upstream call. It is immutable once
// constructed; the With* methods return modified copies.
type RequestSpec struct {
	endpoint string
	params   []Param
	secrets  []Param
	headers  map[string]string
	ttlClass TTLClass
	timeout  time.Duration
}

// NewRequestSpec validates and builds a RequestSpec. Parameter order is kept
// for the outbound query; the cache key uses them sorted.
func NewRequestSpec(endpoint string, ttl TTLClass, timeout time.Duration, params ...Param) (RequestSpec, error) {
	if strings.TrimSpace(endpoint) == "" {
		return RequestSpec{}, utils.NewValidationError("endpoint", "must not be empty")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return RequestSpec{}, utils.NewValidationErrorf("endpoint", "invalid URL %q: %v", endpoint, err)
	}
	if !ttl.Valid() {
		return RequestSpec{}, utils.NewValidationErrorf("ttl_class", "unknown TTL class %q", ttl)
	}
	if timeout <= 0 {
		return RequestSpec{}, utils.NewValidationError("timeout", "must be positive")
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			return RequestSpec{}, utils.NewValidationError("params", "parameter name must not be empty")
		}
		if _, dup := seen[p.Name]; dup {
			return RequestSpec{}, utils.NewValidationErrorf("params", "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	return RequestSpec{
		endpoint: endpoint,
		params:   append([]Param(nil), params...),
		headers:  map[string]string{},
		ttlClass: ttl,
		timeout:  timeout,
	}, nil
}

// WithHeader returns a copy of the spec carrying an extra request header.
// Headers never contribute to the cache key.
func (r RequestSpec) WithHeader(name, value string) RequestSpec {
	headers := make(map[string]string, len(r.headers)+1)
	for k, v := range r.headers {
		headers[k] = v
	}
	headers[name] = value
	r.headers = headers
	return r
}

// WithQuerySecret returns a copy of the spec carrying a credential sent as a
// query parameter. Secrets are excluded from the cache key and from logs.
func (r RequestSpec) WithQuerySecret(name, value string) RequestSpec {
	r.secrets = append(append([]Param(nil), r.secrets...), Param{Name: name, Value: value})
	return r
}

func (r RequestSpec) Endpoint() string        { return r.endpoint }
func (r RequestSpec) TTLClass() TTLClass      { return r.ttlClass }
func (r RequestSpec) Timeout() time.Duration  { return r.timeout }
func (r RequestSpec) Params() []Param         { return append([]Param(nil), r.params...) }
func (r RequestSpec) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// URL renders the full outbound URL including credentials.
func (r RequestSpec) URL() string {
	q := url.Values{}
	for _, p := range r.params {
		q.Add(p.Name, p.Value)
	}
	for _, p := range r.secrets {
		q.Add(p.Name, p.Value)
	}
	if len(q) == 0 {
		return r.endpoint
	}
	sep := "?"
	if strings.Contains(r.endpoint, "?") {
		sep = "&"
	}
	return r.endpoint + sep + q.Encode()
}

// CacheKey is a stable hash of the endpoint and the sorted parameters.
func (r RequestSpec) CacheKey() string {
	sorted := append([]Param(nil), r.params...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString(r.endpoint)
	for _, p := range sorted {
		b.WriteByte('\n')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
