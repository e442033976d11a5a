package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters exported on /metrics.
type Metrics struct {
	Submissions *prometheus.CounterVec
	Stored      prometheus.Counter
	Downloads   *prometheus.CounterVec
	Verified    *prometheus.CounterVec
	Ingested    *prometheus.CounterVec
	Requests    *prometheus.HistogramVec
}

// NewMetrics registers the counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tguard",
			Name:      "submissions_total",
			Help:      "Submissions received, by result.",
		}, []string{"result"}),
		Stored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tguard",
			Name:      "messages_stored_total",
			Help:      "Envelopes stored, one per recipient.",
		}),
		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tguard",
			Name:      "downloads_total",
			Help:      "Download lookups, by result.",
		}, []string{"result"}),
		Verified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tguard",
			Name:      "signature_verifications_total",
			Help:      "Signature verifications, by result.",
		}, []string{"result"}),
		Ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tguard",
			Name:      "ingested_total",
			Help:      "Forwarded mails processed, by result.",
		}, []string{"result"}),
		Requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
	})
}
