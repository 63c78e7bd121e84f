package gate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/rate"
)

// Action is the gate's verdict for one evaluation cycle.
type Action int

const (
	// NoAction suppresses notification for this cycle.
	NoAction Action = iota
	// SendAlert emits an immediate below-threshold alert.
	SendAlert
	// SendSummary emits the once-per-day status summary.
	SendSummary
)

func (a Action) String() string {
	switch a {
	case SendAlert:
		return "send_alert"
	case SendSummary:
		return "send_summary"
	default:
		return "no_action"
	}
}

// State holds the two daily latches. Dates are UTC calendar days in
// YYYY-MM-DD form; empty means the latch has never fired.
type State struct {
	LastAlertDate   string
	LastSummaryDate string
}

// Store abstracts persistence of gate state between cycles. The in-memory
// default gives process-lifetime throttling; a durable backend survives
// restarts.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps gate state in process memory. A restart reopens both
// latches, which is the accepted default behaviour.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the current state.
func (m *MemoryStore) Load(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// Save replaces the current state.
func (m *MemoryStore) Save(ctx context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	return nil
}

// Gate decides whether a cycle should notify, enforcing at most one alert
// and one summary per UTC calendar day. The decide-and-mutate step is a
// single critical section: concurrent cycles cannot both consume a latch.
type Gate struct {
	mu     sync.Mutex
	state  State
	store  Store
	seeded bool
	logger zerolog.Logger
}

// New constructs a Gate backed by the given store. A nil store falls back
// to a fresh in-memory store.
func New(store Store, logger zerolog.Logger) *Gate {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Gate{
		store:  store,
		logger: logger.With().Str("component", "notification_gate").Logger(),
	}
}

// Decide classifies one evaluation cycle into an action and, when an action
// is chosen, commits the corresponding latch before returning. The latch is
// committed even if the caller's dispatch later fails: a lost message is
// preferred over a duplicated one.
func (g *Gate) Decide(ctx context.Context, res rate.Result, now time.Time) Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seed(ctx)

	today := civilDate(now)
	var action Action

	switch res.Outcome {
	case rate.BelowThreshold:
		if g.state.LastAlertDate != today {
			g.state.LastAlertDate = today
			action = SendAlert
		}
	default:
		// The summary latch is independent of the alert latch: an alert
		// earlier in the day does not block the day's summary, and vice versa.
		if g.state.LastSummaryDate != today {
			g.state.LastSummaryDate = today
			action = SendSummary
		}
	}

	if action != NoAction {
		if err := g.store.Save(ctx, g.state); err != nil {
			g.logger.Error().Err(err).Str("action", action.String()).Msg("failed to persist gate state")
		}
	}

	g.logger.Debug().
		Str("outcome", res.Outcome.String()).
		Str("action", action.String()).
		Str("today", today).
		Msg("gate decision")

	return action
}

// seed loads persisted state once, on first use. A load failure starts from
// empty state; worst case is one duplicate notification after a restart.
func (g *Gate) seed(ctx context.Context) {
	if g.seeded {
		return
	}
	g.seeded = true

	loaded, err := g.store.Load(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to load gate state, starting empty")
		return
	}
	g.state = loaded
}

// civilDate truncates an instant to its UTC calendar day. Latch comparisons
// are by date, never elapsed time: a 23-hour gap inside one day keeps a
// latch closed while a one-minute gap across midnight reopens it.
func civilDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
