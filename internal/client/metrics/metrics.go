// Package metrics exposes sync health as Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medsync"

type Metrics struct {
	registry *prometheus.Registry

	pending     prometheus.Gauge
	dead        prometheus.Gauge
	conflicts   prometheus.Gauge
	lastSync    prometheus.Gauge
	online      prometheus.Gauge
	entities    *prometheus.GaugeVec
	replays     *prometheus.CounterVec
	passes      *prometheus.CounterVec
	passSeconds prometheus.Histogram
}

var _ services.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_pending",
			Help: "Outstanding sync queue items, dead-lettered included.",
		}),
		dead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_dead",
			Help: "Dead-lettered sync queue items.",
		}),
		conflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "conflicts_unresolved",
			Help: "Unresolved conflicts in the ledger.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_sync_timestamp_seconds",
			Help: "Unix time of the last fully successful sync pass.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online",
			Help: "1 when the authority answered the last ping.",
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "entities_unsynced",
			Help: "Live records that are not synced, by entity type and status.",
		}, []string{"entity_type", "status"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replays_total",
			Help: "Queue item replays by entity type and outcome.",
		}, []string{"entity_type", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_passes_total",
			Help: "Sync passes by result.",
		}, []string{"result"}),
		passSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_pass_duration_seconds",
			Help:    "Duration of sync passes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	m.registry.MustRegister(
		m.pending, m.dead, m.conflicts, m.lastSync, m.online, m.entities,
		m.replays, m.passes, m.passSeconds,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Replayed(t models.EntityType, outcome string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) PassFinished(_ context.Context, r services.Report, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case r.Failed():
		result = "partial"
	}
	m.passes.WithLabelValues(result).Inc()
	m.passSeconds.Observe(r.Duration.Seconds())
}

// SetSnapshot copies a status snapshot into the gauges.
func (m *Metrics) SetSnapshot(s models.StatusSnapshot) {
	if m == nil {
		return
	}
	m.pending.Set(float64(s.PendingCount))
	m.dead.Set(float64(s.DeadCount))
	m.conflicts.Set(float64(s.UnresolvedConflicts))
	if s.LastSyncAt != nil {
		m.lastSync.Set(float64(s.LastSyncAt.Unix()))
	}
	if s.Online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
	for _, k := range s.Entities {
		t := string(k.Type)
		m.entities.WithLabelValues(t, string(models.StatusPending)).Set(float64(k.Pending))
		m.entities.WithLabelValues(t, string(models.StatusConflict)).Set(float64(k.Conflict))
		m.entities.WithLabelValues(t, string(models.StatusError)).Set(float64(k.Error))
	}
}

// Registry is exposed for tests and for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
