package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rate"
)

// Notification 封装一次通知的完整上下文。
type Notification struct {
	Action    gate.Action
	Pair      rate.Pair
	Rate      decimal.Decimal
	Threshold decimal.Decimal
	Timestamp time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ErrorKind classifies dispatch failures.
type ErrorKind string

const (
	KindTransportFailure ErrorKind = "transport_failure"
	KindAuthFailure      ErrorKind = "auth_failure"
	KindInvalidRecipient ErrorKind = "invalid_recipient"
)

// DispatchError is the typed failure surfaced by notifier implementations.
type DispatchError struct {
	Kind    ErrorKind
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch via %s: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Subject renders the message subject for the notification's action kind.
func (n Notification) Subject() string {
	switch n.Action {
	case gate.SendAlert:
		return fmt.Sprintf("[ALERT] %s rate %s below threshold %s",
			n.Pair, n.Rate.StringFixed(4), n.Threshold.StringFixed(4))
	case gate.SendSummary:
		return fmt.Sprintf("[Daily Summary] %s rate %s", n.Pair, n.Rate.StringFixed(4))
	default:
		return fmt.Sprintf("[%s] rate update", n.Pair)
	}
}

// Body renders the plain-text message body: rate, threshold, signed
// difference with percentage, and the observation timestamp.
func (n Notification) Body() string {
	diff := n.Rate.Sub(n.Threshold)
	pct := decimal.Zero
	if n.Threshold.Sign() > 0 {
		pct = diff.Div(n.Threshold).Mul(decimal.NewFromInt(100))
	}

	b := strings.Builder{}
	switch n.Action {
	case gate.SendAlert:
		b.WriteString(fmt.Sprintf("The %s exchange rate has dropped below your alert threshold.\n\n", n.Pair))
	case gate.SendSummary:
		b.WriteString(fmt.Sprintf("Daily status: the %s exchange rate is holding at or above your alert threshold.\n\n", n.Pair))
	}
	b.WriteString(fmt.Sprintf("Current rate: %s (1 %s = %s %s)\n",
		n.Rate.StringFixed(4), n.Pair.Base, n.Rate.StringFixed(4), n.Pair.Quote))
	b.WriteString(fmt.Sprintf("Threshold:    %s\n", n.Threshold.StringFixed(4)))
	b.WriteString(fmt.Sprintf("Difference:   %s%s (%s%s%%)\n",
		sign(diff), diff.Abs().StringFixed(4), sign(pct), pct.Abs().StringFixed(2)))
	b.WriteString(fmt.Sprintf("Observed at:  %s\n", n.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))
	return b.String()
}

func sign(d decimal.Decimal) string {
	if d.Sign() < 0 {
		return "-"
	}
	return "+"
}

// MultiNotifier fans a notification out to every configured channel and
// aggregates failures. The first typed error is preserved so the caller can
// still classify the dispatch outcome.
type MultiNotifier struct {
	channels []Notifier
}

// NewMultiNotifier wraps the given channels; nil entries are skipped.
func NewMultiNotifier(channels ...Notifier) *MultiNotifier {
	mn := &MultiNotifier{}
	for _, ch := range channels {
		if ch != nil {
			mn.channels = append(mn.channels, ch)
		}
	}
	return mn
}

// Len reports the number of wired channels.
func (m *MultiNotifier) Len() int { return len(m.channels) }

// Notify dispatches to all channels, returning the first error encountered
// after every channel has been tried.
func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, n); err != nil {
			channel := "unknown"
			var dispatchErr *DispatchError
			if errors.As(err, &dispatchErr) {
				channel = dispatchErr.Channel
			}
			metrics.NotificationErrorsTotal.WithLabelValues(channel).Inc()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ Notifier = (*MultiNotifier)(nil)
