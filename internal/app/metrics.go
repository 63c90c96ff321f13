package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes registry gauges on the prometheus registerer passed in, so
// tests can use private registries without double-registration panics.
type Metrics struct {
	rooms      prometheus.Gauge
	transports prometheus.Gauge
	producers  prometheus.Gauge
	consumers  prometheus.Gauge
	workers    prometheus.Gauge

	allocations    prometheus.Counter
	engineFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rooms:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sfu", Name: "rooms", Help: "Live rooms."}),
		transports: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sfu", Name: "transports", Help: "Live transports."}),
		producers:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sfu", Name: "producers", Help: "Live producers."}),
		consumers:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sfu", Name: "consumers", Help: "Live consumers."}),
		workers:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sfu", Name: "workers", Help: "Workers in the pool."}),
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sfu", Name: "allocations_total", Help: "Routers placed onto workers.",
		}),
		engineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sfu", Name: "engine_failures_total", Help: "Failed or timed-out engine calls.",
		}),
	}
	reg.MustRegister(m.rooms, m.transports, m.producers, m.consumers, m.workers, m.allocations, m.engineFailures)
	return m
}

func (m *Metrics) SetWorkers(n int) {
	if m != nil {
		m.workers.Set(float64(n))
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) TransportOpened() {
	if m != nil {
		m.transports.Inc()
	}
}

func (m *Metrics) TransportClosed() {
	if m != nil {
		m.transports.Dec()
	}
}

func (m *Metrics) ProducerOpened() {
	if m != nil {
		m.producers.Inc()
	}
}

func (m *Metrics) ProducerClosed() {
	if m != nil {
		m.producers.Dec()
	}
}

func (m *Metrics) ConsumerOpened() {
	if m != nil {
		m.consumers.Inc()
	}
}

func (m *Metrics) ConsumerClosed() {
	if m != nil {
		m.consumers.Dec()
	}
}

func (m *Metrics) AllocationPerformed() {
	if m != nil {
		m.allocations.Inc()
	}
}

func (m *Metrics) EngineFailed() {
	if m != nil {
		m.engineFailures.Inc()
	}
}
