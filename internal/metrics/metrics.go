package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_cycles_total",
			Help: "Monitoring cycles executed, by outcome status",
		},
		[]string{"status"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_notifications_total",
			Help: "Notifications dispatched, by action kind",
		},
		[]string{"kind"},
	)

	NotificationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_notification_errors_total",
			Help: "Notification dispatch failures, by channel",
		},
		[]string{"channel"},
	)

	// Fetch metrics
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_fetch_attempts_total",
			Help: "Quote source fetch attempts, by result",
		},
		[]string{"result"},
	)

	FetchAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxwatcher_fetch_attempt_duration_seconds",
			Help:    "Latency of individual quote source attempts",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

// ObserveFetchAttempt records one quote source attempt.
func ObserveFetchAttempt(d time.Duration, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	FetchAttemptsTotal.WithLabelValues(result).Inc()
	FetchAttemptDuration.Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled. Blocks.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
