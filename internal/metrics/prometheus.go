package metrics

import (
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records metrics into its own registry.
type Prometheus struct {
	registry        *prom.Registry
	opTotal         *prom.CounterVec
	opSeconds       *prom.HistogramVec
	nodeOutcomes    *prom.CounterVec
	fallbackAnswers prom.Counter
	httpTotal       *prom.CounterVec
	httpSeconds     *prom.HistogramVec
}

// NewPrometheus creates a Prometheus recorder with a private registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prom.NewRegistry(),
		opTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dcia",
			Name:      "ops_total",
			Help:      "Total number of operations",
		}, []string{"op", "success"}),
		opSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dcia",
			Name:      "op_seconds",
			Help:      "Operation duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"op", "success"}),
		nodeOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dcia",
			Name:      "embedding_nodes_total",
			Help:      "Nodes processed by embedding maintenance, by outcome",
		}, []string{"outcome"}),
		fallbackAnswers: prom.NewCounter(prom.CounterOpts{
			Namespace: "dcia",
			Name:      "fallback_answers_total",
			Help:      "Questions answered with the fallback text",
		}),
		httpTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dcia",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dcia",
			Name:      "http_request_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.registry.MustRegister(p.opTotal, p.opSeconds, p.nodeOutcomes, p.fallbackAnswers, p.httpTotal, p.httpSeconds)
	return p
}

func (p *Prometheus) ObserveOp(op string, success bool, seconds float64) {
	s := strconv.FormatBool(success)
	p.opTotal.WithLabelValues(op, s).Inc()
	p.opSeconds.WithLabelValues(op, s).Observe(seconds)
}

func (p *Prometheus) AddEmbeddingOutcomes(embedded, skipped, failed int) {
	p.nodeOutcomes.WithLabelValues("embedded").Add(float64(embedded))
	p.nodeOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	p.nodeOutcomes.WithLabelValues("failed").Add(float64(failed))
}

func (p *Prometheus) IncFallbackAnswers() {
	p.fallbackAnswers.Inc()
}

func (p *Prometheus) ObserveHTTP(method, route string, status int, seconds float64) {
	p.httpTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpSeconds.WithLabelValues(method, route).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prom.Registry {
	return p.registry
}

var _ Recorder = (*Prometheus)(nil)
