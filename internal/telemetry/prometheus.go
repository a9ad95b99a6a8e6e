package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NeonKnightOA/KMQuake2/internal/delta"
)

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace prefixes every metric (default: "kmq2").
	Namespace string

	// Registry receives the collectors.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// PrometheusOption configures the exporter.
type PrometheusOption func(*PrometheusConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Registry = registry
	}
}

func defaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "kmq2",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus exports Add keys as counters and Store keys as gauges.
type Prometheus struct {
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
}

func NewPrometheus(opts ...PrometheusOption) *Prometheus {
	config := defaultPrometheusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Prometheus{
		counters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "netframe",
			Name:      "events_total",
			Help:      "Network frame counters by key",
		}, []string{"key"}),

		gauges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "netframe",
			Name:      "value",
			Help:      "Last stored network frame value by key",
		}, []string{"key"}),
	}
}

func (p *Prometheus) Add(key string, delta uint64) {
	if p == nil {
		return
	}
	p.counters.WithLabelValues(key).Add(float64(delta))
}

func (p *Prometheus) Store(key string, value uint64) {
	if p == nil {
		return
	}
	p.gauges.WithLabelValues(key).Set(float64(value))
}

// BitCollector exports the entity bit histogram. Counts are read at scrape
// time so the parser never touches Prometheus.
type BitCollector struct {
	counts *delta.BitCounts
	desc   *prometheus.Desc
}

func NewBitCollector(namespace string, counts *delta.BitCounts) *BitCollector {
	return &BitCollector{
		counts: counts,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "netframe", "entity_bits_total"),
			"Entity delta bits seen on the wire",
			[]string{"bit"}, nil,
		),
	}
}

func (c *BitCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *BitCollector) Collect(ch chan<- prometheus.Metric) {
	for bit, n := range c.counts.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(n), strconv.Itoa(bit))
	}
}
