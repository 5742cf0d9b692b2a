package reliability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerMetrics are the process-wide Prometheus series for every named
// circuit breaker, matching the singleton pattern in the teacher's
// internal/risk/circuit_breaker.go CircuitBreakerMetrics.
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *BreakerMetrics
)

func getMetrics() *BreakerMetrics {
	metricsOnce.Do(func() {
		metrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "reliability_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			}, []string{"name"}),
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "reliability_circuit_breaker_requests_total",
				Help: "Total requests observed by a circuit breaker",
			}, []string{"name", "outcome"}),
			failures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "reliability_circuit_breaker_failures_total",
				Help: "Total failures observed by a circuit breaker",
			}, []string{"name"}),
		}
	})
	return metrics
}

func (m *BreakerMetrics) recordState(name string, state gobreaker.State) {
	m.state.WithLabelValues(name).Set(float64(state))
}

func (m *BreakerMetrics) recordRequest(name string, success bool) {
	if success {
		m.requests.WithLabelValues(name, "success").Inc()
		return
	}
	m.requests.WithLabelValues(name, "failure").Inc()
	m.failures.WithLabelValues(name).Inc()
}

// Breaker wraps a single named gobreaker.CircuitBreaker configured per
// §4.1: CLOSED counts consecutive failures, trips to OPEN at
// failureThreshold, stays OPEN for recoveryTimeout, then allows exactly
// one trial call through in HALF_OPEN. This differs from the teacher's
// failure-ratio ReadyToTrip (internal/risk/circuit_breaker.go) because the
// spec's seeded scenario 5 requires consecutive-count tripping rather than
// a ratio over a request window.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
	mu   sync.Mutex
}

// NewBreaker constructs a per-endpoint breaker. name is the registry tag
// (e.g. "quote:AAPL", "llm:claude") so tests can reason about one breaker
// in isolation.
func NewBreaker(name string, failureThreshold uint32, recoveryTimeout time.Duration) *Breaker {
	m := getMetrics()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one trial call admitted in HALF_OPEN
		Interval:    0, // never reset CLOSED counts on a timer; only a success does
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			log.Info().
				Str("breaker", breakerName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			m.recordState(breakerName, to)
		},
	}

	b := &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
	m.recordState(name, b.cb.State())
	return b
}

// Execute runs fn through the breaker. If the breaker is OPEN, fn is never
// invoked and Execute returns ErrCircuitOpen immediately.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	m := getMetrics()
	if err != nil {
		m.recordRequest(b.name, false)
		if err == gobreaker.ErrOpenState {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	m.recordRequest(b.name, true)
	return result, nil
}

// State returns the current breaker state as a string for observability.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Registry is a process-local, mutex-guarded map of named breakers, one
// per external-service identifier, matching §4.1's "breakers are
// per-endpoint ... process-local" requirement.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold uint32
	recoveryTimeout  time.Duration
}

// NewRegistry creates a registry that lazily constructs a breaker with the
// given threshold/timeout the first time a name is requested.
func NewRegistry(failureThreshold uint32, recoveryTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for name, constructing it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.failureThreshold, r.recoveryTimeout)
	r.breakers[name] = b
	return b
}

// Reset drops a named breaker so the next Get reconstructs it fresh; used
// by tests that need an isolated breaker per sub-test.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}
