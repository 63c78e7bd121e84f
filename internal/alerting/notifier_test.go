package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/rate"
)

func testNotification(action gate.Action) Notification {
	return Notification{
		Action:    action,
		Pair:      rate.NewPair("CAD", "CNY"),
		Rate:      decimal.RequireFromString("5.03"),
		Threshold: decimal.RequireFromString("5.05"),
		Timestamp: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestAlertSubjectAndBody(t *testing.T) {
	n := testNotification(gate.SendAlert)

	if subj := n.Subject(); !strings.Contains(subj, "ALERT") || !strings.Contains(subj, "CAD-CNY") {
		t.Fatalf("alert subject should name the kind and pair: %q", subj)
	}

	body := n.Body()
	for _, want := range []string{"5.0300", "5.0500", "-0.0200", "-0.40%", "2025-06-01 09:30:00 UTC"} {
		if !strings.Contains(body, want) {
			t.Fatalf("alert body missing %q:\n%s", want, body)
		}
	}
}

func TestSummarySubject(t *testing.T) {
	n := testNotification(gate.SendSummary)
	n.Rate = decimal.RequireFromString("5.10")

	if subj := n.Subject(); !strings.Contains(subj, "Daily Summary") {
		t.Fatalf("summary subject should name the kind: %q", subj)
	}
	if body := n.Body(); !strings.Contains(body, "+0.0500") {
		t.Fatalf("summary body should carry a positive difference:\n%s", body)
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNotification(gate.SendAlert)); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] == "" {
		t.Fatalf("text 应非空")
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), testNotification(gate.SendAlert))
	if err == nil {
		t.Fatal("ok=false 应报错")
	}

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindTransportFailure {
		t.Fatalf("expected transport_failure, got %v", err)
	}
}

func TestTelegramNotifierAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("bad-token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), testNotification(gate.SendAlert))

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindAuthFailure {
		t.Fatalf("expected auth_failure, got %v", err)
	}
}

func TestEmailNotifierRequiresRecipients(t *testing.T) {
	notifier := NewEmailNotifier(EmailOptions{Host: "smtp.example.com", From: "bot@example.com"}, zerolog.Nop())
	err := notifier.Notify(context.Background(), testNotification(gate.SendAlert))

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindInvalidRecipient {
		t.Fatalf("missing recipients should classify as invalid_recipient, got %v", err)
	}
}

type stubChannel struct {
	calls int
	err   error
}

func (s *stubChannel) Notify(ctx context.Context, n Notification) error {
	s.calls++
	return s.err
}

func TestMultiNotifierFansOutAndKeepsFirstError(t *testing.T) {
	failing := &stubChannel{err: &DispatchError{Kind: KindTransportFailure, Channel: "email", Err: errors.New("boom")}}
	healthy := &stubChannel{}

	mn := NewMultiNotifier(failing, nil, healthy)
	if mn.Len() != 2 {
		t.Fatalf("nil channels should be skipped, got %d", mn.Len())
	}

	err := mn.Notify(context.Background(), testNotification(gate.SendAlert))
	if healthy.calls != 1 {
		t.Fatal("healthy channel must still be tried after a failure")
	}

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("first typed error should be preserved, got %v", err)
	}
}
