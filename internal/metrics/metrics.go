// Package metrics exposes console health to Prometheus. The collector
// queries its providers at scrape time instead of keeping counters of its
// own, so a scrape always reflects live engine state.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineStatusEntry is one operator engine's state for metrics.
type EngineStatusEntry struct {
	Agent           string
	ConnectionState string
	InCall          bool
}

// EngineStatusProvider exposes the softphone engine registry.
type EngineStatusProvider interface {
	EngineStatuses() []EngineStatusEntry
}

// DispositionCounter returns call log counts grouped by status.
type DispositionCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// AgentCounter returns the number of operator accounts.
type AgentCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector is a prometheus.Collector gathering DialDesk metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	engines      EngineStatusProvider
	dispositions DispositionCounter
	agents       AgentCounter
	startTime    time.Time

	registrationDesc *prometheus.Desc
	activeCallsDesc  *prometheus.Desc
	callsTotalDesc   *prometheus.Desc
	agentsDesc       *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates the metrics collector.
func NewCollector(engines EngineStatusProvider, dispositions DispositionCounter, agents AgentCounter, startTime time.Time) *Collector {
	return &Collector{
		engines:      engines,
		dispositions: dispositions,
		agents:       agents,
		startTime:    startTime,

		registrationDesc: prometheus.NewDesc(
			"dialdesk_registration_status",
			"Softphone registration status per agent (1=started, 0=other)",
			[]string{"agent", "state"}, nil,
		),
		activeCallsDesc: prometheus.NewDesc(
			"dialdesk_active_calls",
			"Number of live call sessions across all engines",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"dialdesk_calls_total",
			"Total dispositioned calls by status",
			[]string{"status"}, nil,
		),
		agentsDesc: prometheus.NewDesc(
			"dialdesk_agents",
			"Number of operator accounts",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"dialdesk_uptime_seconds",
			"Seconds since the DialDesk process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registrationDesc
	ch <- c.activeCallsDesc
	ch <- c.callsTotalDesc
	ch <- c.agentsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.engines != nil {
		active := 0
		for _, e := range c.engines.EngineStatuses() {
			val := 0.0
			if e.ConnectionState == "started" {
				val = 1.0
			}
			ch <- prometheus.MustNewConstMetric(
				c.registrationDesc, prometheus.GaugeValue, val,
				e.Agent, e.ConnectionState,
			)
			if e.InCall {
				active++
			}
		}
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue, float64(active),
		)
	}

	if c.dispositions != nil {
		counts, err := c.dispositions.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count call logs", "error", err)
		} else {
			for status, count := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(count), status,
				)
			}
		}
	}

	if c.agents != nil {
		count, err := c.agents.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count agents", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.agentsDesc, prometheus.GaugeValue, float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
