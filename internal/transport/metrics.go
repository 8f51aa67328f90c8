package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics are the client-side collectors. They register on the Registerer
// handed to NewMetrics so tests can use a private registry.
type Metrics struct {
	breakerState *prometheus.GaugeVec
	refreshes    *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskboard_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_token_refresh_total",
				Help: "Access token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskboard_api_requests_total",
				Help: "Authenticated API requests by method and status code",
			},
			[]string{"method", "code"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.breakerState, m.refreshes, m.requests)
	}
	return m
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (m *Metrics) setBreakerState(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(stateToFloat(state))
}

// ObserveRefresh counts one refresh outcome: "success", "failure" or "shared".
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts a completed request. code 0 means no response.
func (m *Metrics) ObserveRequest(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
