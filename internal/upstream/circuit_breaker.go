package upstream

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitBreakerState represents the current state of an endpoint breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the per-endpoint breakers
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"` // exhausted calls before opening
	SuccessThreshold int           `mapstructure:"success_threshold" json:"success_threshold"` // successes to close from half-open
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`                     // open period before half-open
	MaxRequests      int           `mapstructure:"max_requests" json:"max_requests"`           // probes allowed while half-open
}

// CircuitBreakerStats holds statistics for a breaker
type CircuitBreakerStats struct {
	State              string    `json:"state"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time"`
	LastSuccessTime    time.Time `json:"last_success_time"`
	StateChanges       int64     `json:"state_changes"`
}

// CircuitBreaker short-circuits calls to an endpoint that keeps failing after
// the retry budget is spent. It records outcomes of whole Execute calls, not
// individual attempts.
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	logger          *logrus.Logger
	now             func() time.Time
	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	inFlight        int
	lastStateChange time.Time
	stats           CircuitBreakerStats
}

// NewCircuitBreaker creates a breaker with defaults applied to zero fields
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger, now func() time.Time) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             now,
		state:           Closed,
		lastStateChange: now(),
	}
}

// Allow reports whether a call may proceed. A true result must be followed
// by exactly one Record call.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++

	switch cb.state {
	case Open:
		if cb.now().Sub(cb.lastStateChange) < cb.config.Timeout {
			cb.stats.RejectedRequests++
			return false
		}
		cb.setState(HalfOpen)
		cb.successCount = 0
		cb.inFlight = 0
		fallthrough
	case HalfOpen:
		if cb.inFlight >= cb.config.MaxRequests {
			cb.stats.RejectedRequests++
			return false
		}
		cb.inFlight++
		return true
	default:
		return true
	}
}

// Record reports the outcome of an allowed call.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.state == HalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if success {
		cb.stats.SuccessfulRequests++
		cb.stats.LastSuccessTime = now
		switch cb.state {
		case Closed:
			cb.failureCount = 0
		case HalfOpen:
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.setState(Closed)
				cb.failureCount = 0
				cb.successCount = 0
			}
		}
		return
	}

	cb.stats.FailedRequests++
	cb.stats.LastFailureTime = now
	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(Open)
		}
	case HalfOpen:
		// Any failed probe re-opens the circuit
		cb.failureCount++
		cb.successCount = 0
		cb.setState(Open)
	}
}

// Release ends an allowed call without counting it either way, for outcomes
// that say nothing about endpoint health (caller cancellation, 4xx).
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == HalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a copy of the current statistics
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state.String()
	return s
}

// Reset manually returns the breaker to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(Closed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.inFlight = 0
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.stats.StateChanges++

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
		"failure_count":   cb.failureCount,
	}).Info("Circuit breaker state changed")
}

// CircuitBreakerManager keys breakers by endpoint
type CircuitBreakerManager struct {
	config   CircuitBreakerConfig
	logger   *logrus.Logger
	now      func() time.Time
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerManager creates an empty manager
func NewCircuitBreakerManager(config CircuitBreakerConfig, logger *logrus.Logger, now func() time.Time) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		logger:   logger,
		now:      now,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for name, creating it on first use
func (m *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, m.config, m.logger, m.now)
	m.breakers[name] = cb
	return cb
}

// GetAllStats returns statistics for every known breaker
func (m *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CircuitBreakerStats, len(m.breakers))
	for name, cb := range m.breakers {
		out[name] = cb.Stats()
	}
	return out
}
