package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records counters for the linking and billing flows.
type Collector struct {
	registry     *prometheus.Registry
	linkStarts   *prometheus.CounterVec
	linkVerifies *prometheus.CounterVec
	reconciles   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		linkStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tallyport_link_start_total",
			Help: "Link start requests by result",
		}, []string{"result"}),
		linkVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tallyport_link_verify_total",
			Help: "Link verify requests by result",
		}, []string{"result"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tallyport_reconcile_total",
			Help: "Entitlement reconciliations by outcome",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(c.linkStarts, c.linkVerifies, c.reconciles)

	return c
}

// RecordLinkStart records a link start attempt.
func (c *Collector) RecordLinkStart(result string) {
	c.linkStarts.WithLabelValues(result).Inc()
}

// RecordLinkVerify records a link verify attempt.
func (c *Collector) RecordLinkVerify(result string) {
	c.linkVerifies.WithLabelValues(result).Inc()
}

// RecordReconcile records a reconciliation outcome.
func (c *Collector) RecordReconcile(outcome string) {
	c.reconciles.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
