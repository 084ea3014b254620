package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client-side request collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluefox",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Panel API requests by HTTP method and response code.",
		}, []string{"method", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bluefox",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Panel API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Register adds the collectors to reg. Collectors that are already
// registered are reused.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.Requests); err != nil {
		existing, err := existingCollector[*prometheus.CounterVec](err)
		if err != nil {
			return err
		}
		m.Requests = existing
	}
	if err := reg.Register(m.Duration); err != nil {
		existing, err := existingCollector[*prometheus.HistogramVec](err)
		if err != nil {
			return err
		}
		m.Duration = existing
	}
	return nil
}

func existingCollector[T prometheus.Collector](err error) (T, error) {
	var zero T
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return zero, fmt.Errorf("collector %T already registered under the same name", are.ExistingCollector)
	}
	return existing, nil
}

func (m *Metrics) observe(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, code).Inc()
	m.Duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
