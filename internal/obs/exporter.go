package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
)

// Exporter publishes collator metrics in the Prometheus format.
// A nil *Exporter is valid and exports nothing.
type Exporter struct {
	registry  *prometheus.Registry
	emitted   *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	failures  *prometheus.CounterVec
	lastTs    *prometheus.GaugeVec
	latency   prometheus.Histogram
}

// NewExporter registers the collator collectors on a private registry.
func NewExporter(namespace string) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datums_emitted_total",
			Help:      "Datums returned by the collator, by source.",
		}, []string{"source"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_exhausted_total",
			Help:      "Sources that reached the end of their sequence.",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Cursor advancement errors, by source.",
		}, []string{"source"}),
		lastTs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_timestamp_seconds",
			Help:      "Timestamp of the last datum returned, by source.",
		}, []string{"source"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cursor_advance_seconds",
			Help:      "Latency of a single cursor advancement.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
	}
	e.registry.MustRegister(e.emitted, e.exhausted, e.failures, e.lastTs, e.latency)
	return e
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) emit(source string, ts time.Time) {
	if e == nil {
		return
	}
	e.emitted.WithLabelValues(source).Inc()
	e.lastTs.WithLabelValues(source).Set(float64(ts.UnixNano()) / 1e9)
}

func (e *Exporter) exhaust(source string) {
	if e == nil {
		return
	}
	e.exhausted.WithLabelValues(source).Inc()
}

func (e *Exporter) fail(source string) {
	if e == nil {
		return
	}
	e.failures.WithLabelValues(source).Inc()
}

func (e *Exporter) advance(d time.Duration) {
	if e == nil {
		return
	}
	e.latency.Observe(d.Seconds())
}

// Serve exposes handler at path on addr until ctx is done.
func Serve(ctx context.Context, addr, path string, handler http.Handler) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logs.Infof("obs: metrics listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
