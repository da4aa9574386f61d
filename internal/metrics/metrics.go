// Package metrics exposes Prometheus collectors for schema caching,
// validation, and diagnostic publishing. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "jsoncheck"

// Recorder holds the collectors.
type Recorder struct {
	cacheOutcomes *prometheus.CounterVec
	compiles      *prometheus.CounterVec
	validation    prometheus.Histogram
	publishes     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg, if non-nil.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_cache_outcomes_total",
			Help:      "Remote schema loads by disk cache outcome.",
		}, []string{"outcome"}),
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_compiles_total",
			Help:      "Schema compilations by result.",
		}, []string{"result"}),
		validation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent parsing and validating one document.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_publishes_total",
			Help:      "Live validation results by what happened to them.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.cacheOutcomes, r.compiles, r.validation, r.publishes)
	}
	return r
}

// CacheOutcome counts a remote schema load.
func (r *Recorder) CacheOutcome(outcome string) {
	if r == nil || outcome == "" {
		return
	}
	r.cacheOutcomes.WithLabelValues(outcome).Inc()
}

// Compile counts a compilation; result is "ok" or an error kind.
func (r *Recorder) Compile(result string) {
	if r == nil {
		return
	}
	r.compiles.WithLabelValues(result).Inc()
}

// ObserveValidation records the duration of one validation.
func (r *Recorder) ObserveValidation(d time.Duration) {
	if r == nil {
		return
	}
	r.validation.Observe(d.Seconds())
}

// Publish counts a live validation result: "published", "superseded" or
// "closed".
func (r *Recorder) Publish(outcome string) {
	if r == nil {
		return
	}
	r.publishes.WithLabelValues(outcome).Inc()
}

// Handler returns a router serving /metrics from g.
func Handler(g prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// Serve runs the metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
