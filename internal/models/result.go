package models

import "time"

// Provenance tags where a returned value came from.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceFailed   Provenance = "failed"
)

// FetchResult is the tagged outcome of an acquisition call. Callers branch on
// Provenance before touching Payload.
type FetchResult struct {
	Provenance Provenance `json:"provenance"`
	Payload    any        `json:"payload,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Err        error      `json:"-"`
	Cached     bool       `json:"cached"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Live wraps a payload obtained from the upstream (directly or via cache).
func Live(payload any) FetchResult {
	return FetchResult{Provenance: ProvenanceLive, Payload: payload, ResolvedAt: time.Now()}
}

// Fallback wraps synthetic data. A nil payload is a programming error.
func Fallback(payload any, reason string) FetchResult {
	if payload == nil {
		panic("models: fallback result requires a payload")
	}
	return FetchResult{Provenance: ProvenanceFallback, Payload: payload, Reason: reason, ResolvedAt: time.Now()}
}

// Failed wraps the error that ended an acquisition attempt.
func Failed(err error) FetchResult {
	return FetchResult{Provenance: ProvenanceFailed, Err: err, ResolvedAt: time.Now()}
}

func (r FetchResult) IsLive() bool     { return r.Provenance == ProvenanceLive }
func (r FetchResult) IsFallback() bool { return r.Provenance == ProvenanceFallback }
func (r FetchResult) IsFailed() bool   { return r.Provenance == ProvenanceFailed }
