package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serverMetrics struct {
	requests *prometheus.CounterVec
	logins   *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_devserver_requests_total",
			Help: "Requests served by the development backend.",
		}, []string{"method", "code"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_devserver_logins_total",
			Help: "Token requests by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.logins} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *serverMetrics) observeRequest(method string, code int) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *serverMetrics) observeLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// MetricsHandler serves the server's registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
