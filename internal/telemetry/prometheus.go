package telemetry

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the same rate watchers the dashboard samples as a
// Prometheus collector, so a deployment that runs headless (-q) can
// still be scraped instead of only tailing the status line.
//
// Grounded on runZeroInc-sockstats's pkg/exporter/exporter.go: a
// Describe/Collect pair built from a small []info table of
// *prometheus.Desc plus a closure that reads the live value, rather
// than a tree of prometheus.NewGaugeVec calls kept in sync by hand.
type Collector struct {
	mu     sync.Mutex
	gauges []gaugeSource
	runID  string
}

type gaugeSource struct {
	desc *prometheus.Desc
	read func() (float64, error)
}

// NewCollector creates an empty collector labelled with runID (the
// recorder run's identifier, see NewRunID).
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

// AddGauge registers a named gauge backed by read, which is called
// once per Collect.
func (c *Collector) AddGauge(name, help string, read func() (float64, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges = append(c.gauges, gaugeSource{
		desc: prometheus.NewDesc(
			fmt.Sprintf("tcpwatch_%s", name), help, nil, prometheus.Labels{"run_id": c.runID},
		),
		read: read,
	})
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gauges {
		descs <- g.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gauges {
		v, err := g.read()
		if err != nil {
			continue
		}
		metrics <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, v)
	}
}
