package metrics

import (
	"bufio"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the pipeline. Collectors exist
// from package init so callers never nil-check; Register exposes them.
var Metrics = struct {
	RequestDuration     *prometheus.HistogramVec
	RequestsInFlight    prometheus.Gauge
	ScrapeBatches       *prometheus.CounterVec
	ScrapedInfluencers  prometheus.Counter
	ScoringDuration     prometheus.Histogram
	Evaluations         *prometheus.CounterVec
	RunsTotal           *prometheus.CounterVec
	MediaCached         *prometheus.CounterVec
	ProgressSubscribers prometheus.Gauge
}{
	RequestDuration: prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	),
	RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	}),
	ScrapeBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_scrape_batches_total",
		Help: "Scraping provider batches, by terminal provider status.",
	}, []string{"status"}),
	ScrapedInfluencers: prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outreach_scraped_influencers_total",
		Help: "Influencers persisted by scrape runs.",
	}),
	ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outreach_scoring_duration_seconds",
		Help:    "Duration of single relevance scoring calls.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}),
	Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_evaluations_total",
		Help: "Evaluation rows written, by bucket.",
	}, []string{"bucket"}),
	RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_runs_total",
		Help: "Finished scrape and filter runs, by kind and status.",
	}, []string{"kind", "status"}),
	MediaCached: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_media_cached_total",
		Help: "Media cache attempts during import save, by result.",
	}, []string{"result"}),
	ProgressSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_progress_subscribers",
		Help: "Live progress stream subscribers.",
	}),
}

var registerOnce sync.Once

// Register adds the collectors (and DB pool gauges when db is set) to the
// default registry. Safe to call more than once.
func Register(db *sql.DB) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Metrics.RequestDuration,
			Metrics.RequestsInFlight,
			Metrics.ScrapeBatches,
			Metrics.ScrapedInfluencers,
			Metrics.ScoringDuration,
			Metrics.Evaluations,
			Metrics.RunsTotal,
			Metrics.MediaCached,
			Metrics.ProgressSubscribers,
		)
		if db == nil {
			return
		}
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "outreach_db_connections_in_use",
				Help: "Number of database connections in use.",
			}, func() float64 { return float64(db.Stats().InUse) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "outreach_db_connections_idle",
				Help: "Number of idle database connections.",
			}, func() float64 { return float64(db.Stats().Idle) }),
		)
	})
}

// Middleware records request duration using the matched chi route pattern
// to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		Metrics.RequestsInFlight.Inc()
		defer Metrics.RequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		Metrics.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and Hijack for SSE and WebSocket.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
