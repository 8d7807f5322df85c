package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector of the service. It records query outcomes
// for the pipeline and request metrics for the HTTP layer.
type Registry struct {
	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	retrievalMaxScore prometheus.Histogram
	unfaithfulTotal   prometheus.Counter
	indexDocuments    prometheus.Gauge
	indexReloads      *prometheus.CounterVec

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = "kbqa"
	}

	r := &Registry{registry: prometheus.NewRegistry()}

	r.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Processed questions by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)
	r.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end question latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)
	r.retrievalMaxScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_max_score",
			Help:      "Best similarity seen per retrieval",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
	r.unfaithfulTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unfaithful_answers_total",
			Help:      "Answers containing a hallucination indicator phrase",
		},
	)
	r.indexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Records in the active vector index",
		},
	)
	r.indexReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_reloads_total",
			Help:      "Index reload attempts by result",
		},
		[]string{"result"},
	)
	r.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	r.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	r.registry.MustRegister(
		r.queriesTotal,
		r.queryDuration,
		r.retrievalMaxScore,
		r.unfaithfulTotal,
		r.indexDocuments,
		r.indexReloads,
		r.requestsTotal,
		r.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) ObserveQuery(intent, outcome string, latency time.Duration) {
	r.queriesTotal.WithLabelValues(intent, outcome).Inc()
	r.queryDuration.WithLabelValues(intent).Observe(latency.Seconds())
}

func (r *Registry) ObserveRetrieval(maxScore float64) {
	r.retrievalMaxScore.Observe(maxScore)
}

func (r *Registry) UnfaithfulAnswer() {
	r.unfaithfulTotal.Inc()
}

func (r *Registry) SetIndexDocuments(n int) {
	r.indexDocuments.Set(float64(n))
}

func (r *Registry) IndexReloaded(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.indexReloads.WithLabelValues(result).Inc()
}

// Middleware records request count and latency per route template.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.requestsTotal.WithLabelValues(c.Request.Method, path, statusClass(c.Writer.Status())).Inc()
		r.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (r *Registry) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func statusClass(status int) string {
	if status < 100 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
