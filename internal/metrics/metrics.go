// Package metrics exposes the monitor's state as Prometheus gauges.
//
// The Collector is a monitor.Subscriber. Every completed poll overwrites the
// gauges, so a scrape always reflects the most recently completed poll.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/updates"
)

const namespace = "hamonitor"

// Poll results used as the "result" label of polls_total.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector owns a private registry and the monitor's gauges.
type Collector struct {
	registry *prometheus.Registry

	offlineDevices  prometheus.Gauge
	offlineEntities prometheus.Gauge
	updatesPending  *prometheus.GaugeVec
	balanceValue    *prometheus.GaugeVec
	balanceLow      *prometheus.GaugeVec
	pollKnown       prometheus.Gauge
	lastPoll        prometheus.Gauge
	polls           *prometheus.CounterVec

	// guards the reset-and-fill of the balance vectors
	mu sync.Mutex
}

// NewCollector registers the monitor gauges plus the Go runtime and process
// collectors on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		offlineDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_devices",
			Help:      "Devices whose entities are all unavailable.",
		}),
		offlineEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_entities",
			Help:      "Unavailable entities not covered by an offline device.",
		}),
		updatesPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "updates_pending",
			Help:      "Pending software updates by category.",
		}, []string{"category"}),
		balanceValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_value",
			Help:      "Current value of a balance sensor.",
		}, []string{"entity_id", "unit"}),
		balanceLow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_low",
			Help:      "1 when a balance sensor is below its warning threshold.",
		}, []string{"entity_id"}),
		pollKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_known",
			Help:      "1 when the last poll fetched Home Assistant state successfully.",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time the last poll completed.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Completed polls by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.offlineDevices,
		c.offlineEntities,
		c.updatesPending,
		c.balanceValue,
		c.balanceLow,
		c.pollKnown,
		c.lastPoll,
		c.polls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create the series so dashboards see zeros before the first poll.
	c.updatesPending.WithLabelValues(string(updates.CategoryCore))
	c.updatesPending.WithLabelValues(string(updates.CategoryThirdParty))
	c.polls.WithLabelValues(ResultOK)
	c.polls.WithLabelValues(ResultError)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc exposes fn under hamonitor_<name>. It is used for values
// owned elsewhere, such as connected WebSocket clients.
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) error {
	return c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// OnSnapshot implements monitor.Subscriber.
//
// An unknown poll only bumps polls_total{result="error"} and clears
// poll_known. The other gauges keep their last known values.
func (c *Collector) OnSnapshot(snap *monitor.Snapshot) {
	c.lastPoll.Set(float64(snap.TakenAt.UnixNano()) / 1e9)

	if !snap.Known {
		c.polls.WithLabelValues(ResultError).Inc()
		c.pollKnown.Set(0)
		return
	}
	c.polls.WithLabelValues(ResultOK).Inc()
	c.pollKnown.Set(1)

	c.offlineDevices.Set(float64(len(snap.Offline.Devices)))
	c.offlineEntities.Set(float64(len(snap.Offline.Entities)))
	c.updatesPending.WithLabelValues(string(updates.CategoryCore)).Set(float64(len(snap.Updates.Core)))
	c.updatesPending.WithLabelValues(string(updates.CategoryThirdParty)).Set(float64(len(snap.Updates.ThirdParty)))

	c.mu.Lock()
	defer c.mu.Unlock()

	// Sensors that went unavailable or were removed from the config drop out.
	c.balanceValue.Reset()
	c.balanceLow.Reset()
	for _, r := range snap.Balance {
		if !r.Available {
			continue
		}
		c.balanceValue.WithLabelValues(r.EntityID, r.Unit).Set(r.Value)
		low := 0.0
		if r.Low {
			low = 1
		}
		c.balanceLow.WithLabelValues(r.EntityID).Set(low)
	}
}
