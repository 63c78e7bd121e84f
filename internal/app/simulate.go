package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/monitor"
	"fx-rate-alerts/internal/rate"
)

// SimulateAlert 以给定汇率走一遍完整的评估→闸门→通知流程，用于验证通道配置。
func (a *App) SimulateAlert(ctx context.Context, value decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	static := &staticRateFetcher{pair: a.pair(), value: value}
	g := gate.New(nil, a.Logger)
	svc := monitor.New(nil, static, g, notifier, a.threshold(), a.Logger)

	outcome := svc.RunOnce(ctx, time.Now().UTC())
	if outcome.Err != nil {
		return outcome.Err
	}
	if outcome.Action == gate.NoAction {
		a.Logger.Info().Msg("simulated rate produced no notification")
	}
	return nil
}

type staticRateFetcher struct {
	pair  rate.Pair
	value decimal.Decimal
}

func (s *staticRateFetcher) Fetch(ctx context.Context) (rate.Rate, error) {
	return rate.Rate{Pair: s.pair, Value: s.value, ObservedAt: time.Now().UTC()}, nil
}

var _ fetcher.RateFetcher = (*staticRateFetcher)(nil)
