package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the agenda and intake flows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitionsTotal *prometheus.CounterVec
	intakeTotal      *prometheus.CounterVec
	lookupsTotal     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "agenda",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle actions by outcome",
		}, []string{"action", "result"}),
		intakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "intake",
			Name:      "validations_total",
			Help:      "Intake validation runs by outcome",
		}, []string{"result"}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "intake",
			Name:      "address_lookups_total",
			Help:      "Postal code lookups by outcome",
		}, []string{"result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.intakeTotal, m.lookupsTotal, m.httpLatency)
	return m
}

func (m *Metrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveIntake(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.intakeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}
