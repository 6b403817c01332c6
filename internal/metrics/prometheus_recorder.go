package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/air-gapped/embedmark/internal/transform"
)

const namespace = "embedmark"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	candidates     *prom.CounterVec
	resolutions    *prom.HistogramVec
	cacheLookups   *prom.CounterVec
	renderDuration prom.Histogram
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return reg
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		candidates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Link candidates by outcome and provider",
		}, []string{"outcome", "provider"}),
		resolutions: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Duration of oEmbed resolutions",
			Buckets:   prom.DefBuckets,
		}, []string{"provider", "result"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "oEmbed response cache lookups by status",
		}, []string{"status"}),
		renderDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Markdown render duration including embed resolution",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(pr.candidates, pr.resolutions, pr.cacheLookups, pr.renderDuration)
	return pr
}

// ObserveCandidate implements transform.Observer.
func (p *PrometheusRecorder) ObserveCandidate(outcome transform.Outcome, providerID string) {
	if p == nil {
		return
	}
	if providerID == "" {
		providerID = "none"
	}
	p.candidates.WithLabelValues(string(outcome), providerID).Inc()
}

// ObserveResolution implements transform.Observer.
func (p *PrometheusRecorder) ObserveResolution(providerID string, d time.Duration, err error) {
	if p == nil {
		return
	}
	res := "success"
	if err != nil {
		res = "failed"
	}
	p.resolutions.WithLabelValues(providerID, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheLookup(status string) {
	if p == nil {
		return
	}
	p.cacheLookups.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveRenderDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.renderDuration.Observe(d.Seconds())
}

// HTTPHandler serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
