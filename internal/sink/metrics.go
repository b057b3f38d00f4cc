package sink

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	criticalMetric = "imagegate_critical_findings"
	highMetric     = "imagegate_high_findings"
	DefaultJob     = "imagegate"
)

// MetricsSink records critical and high counts per target. The gauges live in a registry
// that can be served for scraping; when PushURL is set they are also pushed to a Pushgateway.
type MetricsSink struct {
	PushURL string
	Job     string

	registry *prometheus.Registry
	critical *prometheus.GaugeVec
	high     *prometheus.GaugeVec
	client   push.HTTPDoer
}

func NewMetrics(pushURL, job string) *MetricsSink {
	if job == "" {
		job = DefaultJob
	}
	m := &MetricsSink{
		PushURL:  pushURL,
		Job:      job,
		registry: prometheus.NewRegistry(),
		critical: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: criticalMetric,
			Help: "Number of CRITICAL findings in the latest scan of the target.",
		}, []string{"target"}),
		high: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: highMetric,
			Help: "Number of HIGH findings in the latest scan of the target.",
		}, []string{"target"}),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	m.registry.MustRegister(m.critical, m.high)
	return m
}

func (m *MetricsSink) Name() string { return "metrics" }

// Registry exposes the gauges for a pull endpoint.
func (m *MetricsSink) Registry() *prometheus.Registry { return m.registry }

func (m *MetricsSink) Deliver(ctx context.Context, d Delivery) error {
	critical := float64(d.Summary.Critical())
	high := float64(d.Summary.High())
	m.critical.WithLabelValues(d.Target).Set(critical)
	m.high.WithLabelValues(d.Target).Set(high)

	if m.PushURL == "" {
		return nil
	}

	// The Pushgateway group carries the target, so the pushed samples must not repeat it
	// as a metric label.
	pc := prometheus.NewGauge(prometheus.GaugeOpts{Name: criticalMetric, Help: "Number of CRITICAL findings."})
	ph := prometheus.NewGauge(prometheus.GaugeOpts{Name: highMetric, Help: "Number of HIGH findings."})
	pc.Set(critical)
	ph.Set(high)

	err := push.New(m.PushURL, m.Job).
		Client(m.client).
		Collector(pc).
		Collector(ph).
		Grouping("target", d.Target).
		PushContext(ctx)
	if err != nil {
		return &DeliveryError{Sink: m.Name(), Err: err}
	}
	return nil
}
