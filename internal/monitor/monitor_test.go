package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/rate"
)

type scriptedFetcher struct {
	pair   rate.Pair
	values []string
	errs   []error
	calls  int
}

func (f *scriptedFetcher) Fetch(ctx context.Context) (rate.Rate, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return rate.Rate{}, f.errs[i]
	}
	return rate.Rate{
		Pair:       f.pair,
		Value:      decimal.RequireFromString(f.values[i]),
		ObservedAt: time.Now().UTC(),
	}, nil
}

type recordingNotifier struct {
	sent []alerting.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func newService(f *scriptedFetcher, n alerting.Notifier) *Service {
	threshold := decimal.RequireFromString("5.05")
	g := gate.New(nil, zerolog.Nop())
	return New(nil, f, g, n, threshold, zerolog.Nop())
}

func TestEndToEndActionSequence(t *testing.T) {
	// Same calendar day, threshold 5.05: the first above-threshold cycle
	// summarises, the first drop alerts, everything after stays quiet.
	f := &scriptedFetcher{pair: rate.NewPair("CAD", "CNY"), values: []string{"5.10", "5.03", "5.03", "5.20"}}
	notifier := &recordingNotifier{}
	svc := newService(f, notifier)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	want := []gate.Action{gate.SendSummary, gate.SendAlert, gate.NoAction, gate.NoAction}

	for i, expected := range want {
		now := day.Add(time.Duration(i) * time.Hour)
		outcome := svc.RunOnce(context.Background(), now)
		if outcome.Status != StatusSuccess {
			t.Fatalf("cycle %d should succeed, got %s (%v)", i, outcome.Status, outcome.Err)
		}
		if outcome.Action != expected {
			t.Fatalf("cycle %d: expected %s, got %s", i, expected, outcome.Action)
		}
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("expected 2 dispatched notifications, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Action != gate.SendSummary || notifier.sent[1].Action != gate.SendAlert {
		t.Fatalf("dispatched kinds wrong: %+v", notifier.sent)
	}
}

func TestFetchFailureLeavesGateUntouched(t *testing.T) {
	fetchErr := errors.New("quote source down")
	f := &scriptedFetcher{
		pair:   rate.NewPair("CAD", "CNY"),
		values: []string{"", "5.03"},
		errs:   []error{fetchErr, nil},
	}
	notifier := &recordingNotifier{}
	svc := newService(f, notifier)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	outcome := svc.RunOnce(context.Background(), now)
	if outcome.Status != StatusFetchFailure {
		t.Fatalf("expected fetch_failure, got %s", outcome.Status)
	}
	if !errors.Is(outcome.Err, fetchErr) {
		t.Fatalf("outcome should surface the fetch error, got %v", outcome.Err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("no notification may be attempted on fetch failure")
	}

	// The alert latch was not consumed by the failed cycle.
	outcome = svc.RunOnce(context.Background(), now.Add(time.Hour))
	if outcome.Action != gate.SendAlert {
		t.Fatalf("latch should still be open after fetch failure, got %s", outcome.Action)
	}
}

func TestDispatchFailureConsumesLatch(t *testing.T) {
	f := &scriptedFetcher{pair: rate.NewPair("CAD", "CNY"), values: []string{"5.03", "5.03"}}
	notifier := &recordingNotifier{err: &alerting.DispatchError{
		Kind:    alerting.KindTransportFailure,
		Channel: "email",
		Err:     errors.New("connection reset"),
	}}
	svc := newService(f, notifier)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	outcome := svc.RunOnce(context.Background(), now)
	if outcome.Status != StatusDispatchFailure {
		t.Fatalf("expected dispatch_failure, got %s", outcome.Status)
	}
	if outcome.Action != gate.SendAlert {
		t.Fatalf("outcome should report the chosen action, got %s", outcome.Action)
	}

	// At-most-once: the latch stays consumed even though the message was lost.
	outcome = svc.RunOnce(context.Background(), now.Add(time.Hour))
	if outcome.Status != StatusSuccess || outcome.Action != gate.NoAction {
		t.Fatalf("latch must not be rolled back after dispatch failure, got %s/%s", outcome.Status, outcome.Action)
	}
}

func TestRepeatedCycleSameInstantIsIdempotent(t *testing.T) {
	f := &scriptedFetcher{pair: rate.NewPair("CAD", "CNY"), values: []string{"5.03", "5.03"}}
	notifier := &recordingNotifier{}
	svc := newService(f, notifier)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	first := svc.RunOnce(context.Background(), now)
	second := svc.RunOnce(context.Background(), now)

	if first.Action != gate.SendAlert || second.Action != gate.NoAction {
		t.Fatalf("same-instant repeat should decide NoAction the second time: %s then %s", first.Action, second.Action)
	}
}

func TestNilNotifierStillEvaluates(t *testing.T) {
	f := &scriptedFetcher{pair: rate.NewPair("CAD", "CNY"), values: []string{"5.03"}}
	svc := newService(f, nil)

	outcome := svc.RunOnce(context.Background(), time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	if outcome.Status != StatusSuccess || outcome.Action != gate.SendAlert {
		t.Fatalf("gate should still decide without a notifier, got %s/%s", outcome.Status, outcome.Action)
	}
}
