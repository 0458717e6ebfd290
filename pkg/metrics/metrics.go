// Package metrics exposes layout, frame and HTTP metrics in Prometheus format.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ritzau/neural-portfolio/pkg/layout"
)

// Collector holds all metrics for one process. Each collector owns its registry.
type Collector struct {
	registry *prometheus.Registry

	// Layout metrics
	LayoutRuns          prometheus.Counter
	LayoutReused        prometheus.Counter
	LayoutDuration      prometheus.Histogram
	CollisionCompliance prometheus.Gauge
	MeanLinkError       prometheus.Gauge

	// Frame loop metrics
	Frames      prometheus.Counter
	FramePanics prometheus.Counter

	// Transport metrics
	Sessions     prometheus.Gauge
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		LayoutRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_runs_total",
			Help:      "Total number of force layouts computed",
		}),
		LayoutReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_reused_total",
			Help:      "Total number of layout requests served from the memoized result",
		}),
		LayoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Force layout duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		CollisionCompliance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layout_collision_compliance_ratio",
			Help:      "Fraction of node pairs separated by at least the collision distance",
		}),
		MeanLinkError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layout_mean_link_error",
			Help:      "Mean absolute deviation of link lengths from their rest length",
		}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of frames ticked",
		}),
		FramePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_panics_total",
			Help:      "Total number of frames that panicked and were recovered",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected websocket sessions",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.LayoutRuns,
		c.LayoutReused,
		c.LayoutDuration,
		c.CollisionCompliance,
		c.MeanLinkError,
		c.Frames,
		c.FramePanics,
		c.Sessions,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveLayout records a finished layout.
func (c *Collector) ObserveLayout(res layout.Result) {
	if res.Reused {
		c.LayoutReused.Inc()
		return
	}
	c.LayoutRuns.Inc()
	c.LayoutDuration.Observe(res.Duration.Seconds())
	c.CollisionCompliance.Set(res.Quality.CollisionCompliance)
	c.MeanLinkError.Set(res.Quality.MeanLinkError)
}

// ObserveFrame records a ticked frame
func (c *Collector) ObserveFrame(panicked bool) {
	c.Frames.Inc()
	if panicked {
		c.FramePanics.Inc()
	}
}

// SessionOpened and SessionClosed track websocket sessions.
func (c *Collector) SessionOpened() { c.Sessions.Inc() }
func (c *Collector) SessionClosed() { c.Sessions.Dec() }

// Middleware records request counts and durations labelled by route template.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush supports streaming responses such as server-sent events.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}
