package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"fx-rate-alerts/internal/monitor"
)

// Check runs a single monitoring cycle and prints the outcome.
func (a *App) Check(ctx context.Context) error {
	svc, closeStore, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	outcome := svc.RunOnce(ctx, time.Now().UTC())

	switch outcome.Status {
	case monitor.StatusSuccess:
		fmt.Fprintf(os.Stdout, "pair:      %s\nrate:      %s\nthreshold: %s\naction:    %s\n",
			outcome.Rate.Pair,
			outcome.Rate.Value.StringFixed(4),
			a.threshold().StringFixed(4),
			outcome.Action,
		)
		return nil
	case monitor.StatusDispatchFailure:
		fmt.Fprintf(os.Stdout, "rate:   %s\naction: %s (dispatch failed)\n",
			outcome.Rate.Value.StringFixed(4), outcome.Action)
		return outcome.Err
	default:
		return outcome.Err
	}
}
