package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deployment outcomes recorded by Metrics.DeploymentFinished.
const (
	OutcomeSuccess      = "success"
	OutcomeNotConnected = "not_connected"
	OutcomeInvalid      = "invalid_request"
	OutcomeUpstream     = "upstream_error"
	OutcomeError        = "error"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	deployments  *prometheus.CounterVec
	callbacks    *prometheus.CounterVec
	triggers     *prometheus.CounterVec
	blobsUploads prometheus.Counter
}

// NewMetrics registers the counters on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makeit_deployments_total",
			Help: "Deployments by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makeit_oauth_callbacks_total",
			Help: "OAuth callbacks by provider and redirect code.",
		}, []string{"provider", "result"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "makeit_deploy_trigger_total",
			Help: "Hosting deployment triggers by reported status.",
		}, []string{"status"}),
		blobsUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "makeit_blobs_uploaded_total",
			Help: "Git blobs uploaded during deployments.",
		}),
	}
	reg.MustRegister(
		m.deployments,
		m.callbacks,
		m.triggers,
		m.blobsUploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DeploymentFinished(outcome string) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OAuthCallback(provider, result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) DeployTriggered(status string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(status).Inc()
}

func (m *Metrics) BlobsUploaded(n int) {
	if m == nil {
		return
	}
	m.blobsUploads.Add(float64(n))
}
