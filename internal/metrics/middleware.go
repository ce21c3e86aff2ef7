package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Route parameters that name what a gateway request operates on.
const (
	TargetIndex = "index"
	TargetGroup = "group"
)

// Gateway request collectors, labelled by route pattern and target.
var (
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meilifed",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "target", "status"},
	)

	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meilifed",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway requests",
		},
		[]string{"method", "route", "target", "status"},
	)
)

func gatewayCollectors() []prometheus.Collector {
	return []prometheus.Collector{GatewayRequestDuration, GatewayRequestsTotal}
}

// KnownTarget reports whether name is a managed index (kind TargetIndex) or a
// declared group (kind TargetGroup).
type KnownTarget func(kind, name string) bool

// Middleware records gateway request duration and count. The target label is
// "index:<id>" or "group:<name>" for catalog entries accepted by known,
// "index:unknown" or "group:unknown" otherwise, and "-" for routes without
// a target. A nil known collapses every target to its kind.
func Middleware(known KnownTarget) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route, target := "unmatched", "-"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
				target = targetLabel(rctx, known)
			}
			status := strconv.Itoa(ww.status)

			GatewayRequestDuration.WithLabelValues(r.Method, route, target, status).Observe(time.Since(start).Seconds())
			GatewayRequestsTotal.WithLabelValues(r.Method, route, target, status).Inc()
		})
	}
}

func targetLabel(rctx *chi.Context, known KnownTarget) string {
	for _, kind := range []string{TargetIndex, TargetGroup} {
		name := rctx.URLParam(kind)
		if name == "" {
			continue
		}
		switch {
		case known == nil:
			return kind
		case known(kind, name):
			return kind + ":" + name
		default:
			return kind + ":unknown"
		}
	}
	return "-"
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Flush lets streaming handlers flush through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
