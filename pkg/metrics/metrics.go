package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Governor metrics
	governorWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igmonitor_governor_wait_seconds",
			Help:    "Time spent blocked in the rate governor",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 600},
		},
		[]string{"reason"}, // window, jitter, batch, cooldown
	)

	governorRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "igmonitor_governor_requests_total",
			Help: "Total number of pacing calls admitted by the rate governor",
		},
	)

	throttleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igmonitor_throttle_events_total",
			Help: "Upstream throttling signals and the decision taken",
		},
		[]string{"decision"}, // retry or abort
	)

	// Collection metrics
	collectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igmonitor_collection_runs_total",
			Help: "Collection runs by kind and final status",
		},
		[]string{"kind", "status"},
	)

	collectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igmonitor_collection_duration_seconds",
			Help:    "Wall time of a collection run",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"kind"},
	)

	identifiersCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igmonitor_identifiers_collected_total",
			Help: "New identifiers accumulated by the collector",
		},
		[]string{"kind"},
	)

	checkpointsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igmonitor_checkpoints_saved_total",
			Help: "Checkpoint writes by outcome",
		},
		[]string{"result"}, // success or error
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igmonitor_storage_operation_duration_seconds",
			Help:    "Latency of store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"store", "operation"},
	)

	// Source metrics
	sourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igmonitor_source_requests_total",
			Help: "HTTP requests sent to the upstream source by status code class",
		},
		[]string{"endpoint", "code"},
	)
)

// ObserveGovernorWait records time blocked in the governor
func ObserveGovernorWait(reason string, d time.Duration) {
	if d <= 0 {
		return
	}
	governorWaitSeconds.WithLabelValues(reason).Observe(d.Seconds())
}

// IncGovernorRequests counts one admitted pacing call
func IncGovernorRequests() {
	governorRequestsTotal.Inc()
}

// IncThrottleEvent counts an escalation and its outcome
func IncThrottleEvent(decision string) {
	throttleEventsTotal.WithLabelValues(decision).Inc()
}

// ObserveCollection records the outcome of a collection run
func ObserveCollection(kind, status string, d time.Duration) {
	collectionRunsTotal.WithLabelValues(kind, status).Inc()
	collectionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// AddIdentifiers counts newly collected identifiers
func AddIdentifiers(kind string, n int) {
	identifiersCollected.WithLabelValues(kind).Add(float64(n))
}

// IncCheckpoint counts a checkpoint write
func IncCheckpoint(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	checkpointsSaved.WithLabelValues(result).Inc()
}

// ObserveStorage records the latency of a store operation started at start
func ObserveStorage(store, operation string, start time.Time) {
	storageOperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}

// IncSourceRequest counts a request to the upstream
func IncSourceRequest(endpoint string, code int) {
	sourceRequestsTotal.WithLabelValues(endpoint, codeClass(code)).Inc()
}

func codeClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
