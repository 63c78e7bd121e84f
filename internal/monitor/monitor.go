package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rate"
	"fx-rate-alerts/internal/scheduler"
)

// Status reports how a cycle ended.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusFetchFailure    Status = "fetch_failure"
	StatusDispatchFailure Status = "dispatch_failure"
)

// Outcome is the result of one fetch→evaluate→gate→dispatch pass. Reported
// upward after every cycle, never stored.
type Outcome struct {
	Status Status
	Rate   rate.Rate
	Action gate.Action
	Err    error
}

// Service orchestrates monitoring cycles.
type Service struct {
	sched     *scheduler.Scheduler
	fetcher   fetcher.RateFetcher
	gate      *gate.Gate
	notifier  alerting.Notifier
	threshold decimal.Decimal
	logger    zerolog.Logger
}

// New constructs the monitoring service.
func New(sched *scheduler.Scheduler, f fetcher.RateFetcher, g *gate.Gate, notifier alerting.Notifier, threshold decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		sched:     sched,
		fetcher:   f,
		gate:      g,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger.With().Str("component", "monitor").Logger(),
	}
}

// Run drives cycles at the scheduler's interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, func(ctx context.Context, now time.Time) error {
		outcome := s.RunOnce(ctx, now)
		return outcome.Err
	})
}

// RunOnce executes a single monitoring cycle. A fetch failure returns
// immediately with no gate mutation; a dispatch failure does not roll the
// consumed latch back, so a message can be lost but never duplicated.
func (s *Service) RunOnce(ctx context.Context, now time.Time) Outcome {
	r, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("cycle failed: could not fetch rate")
		return s.report(Outcome{Status: StatusFetchFailure, Err: err})
	}

	res := rate.Evaluate(r, s.threshold)
	action := s.gate.Decide(ctx, res, now)

	s.logger.Info().
		Str("pair", r.Pair.String()).
		Str("rate", r.Value.String()).
		Str("threshold", s.threshold.String()).
		Str("outcome", res.Outcome.String()).
		Str("action", action.String()).
		Msg("cycle evaluated")

	if action == gate.NoAction || s.notifier == nil {
		return s.report(Outcome{Status: StatusSuccess, Rate: r, Action: action})
	}

	note := alerting.Notification{
		Action:    action,
		Pair:      r.Pair,
		Rate:      r.Value,
		Threshold: s.threshold,
		Timestamp: r.ObservedAt,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("action", action.String()).Msg("cycle degraded: dispatch failed after latch commit")
		return s.report(Outcome{Status: StatusDispatchFailure, Rate: r, Action: action, Err: err})
	}

	metrics.NotificationsTotal.WithLabelValues(action.String()).Inc()
	return s.report(Outcome{Status: StatusSuccess, Rate: r, Action: action})
}

func (s *Service) report(o Outcome) Outcome {
	metrics.CyclesTotal.WithLabelValues(string(o.Status)).Inc()
	return o
}
