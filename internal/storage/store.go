package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fx-rate-alerts/internal/gate"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	// The gate state is a single row: two daily latch dates for the one
	// monitored pair. id is pinned to 1 so the upsert always targets it.
	ensureGateStateSQL = `CREATE TABLE IF NOT EXISTS gate_state (
        id                SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
        last_alert_date   TEXT NOT NULL DEFAULT '',
        last_summary_date TEXT NOT NULL DEFAULT '',
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	loadGateStateSQL = `SELECT last_alert_date, last_summary_date
    FROM gate_state
    WHERE id = 1;`

	saveGateStateSQL = `INSERT INTO gate_state (id, last_alert_date, last_summary_date, updated_at)
    VALUES (1, $1, $2, now())
    ON CONFLICT (id) DO UPDATE
    SET last_alert_date   = EXCLUDED.last_alert_date,
        last_summary_date = EXCLUDED.last_summary_date,
        updated_at        = EXCLUDED.updated_at;`
)

// Options configure PostgreSQL connectivity for the durable gate store.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// GateStateStore persists the notification gate's daily latches so a
// restart does not reopen them.
type GateStateStore struct {
	pool *pgxpool.Pool
}

// NewGateStateStore wires a pgx pool into a store and ensures the backing
// table exists.
func NewGateStateStore(ctx context.Context, pool *pgxpool.Pool) (*GateStateStore, error) {
	s := &GateStateStore{pool: pool}
	p, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if _, err := p.Exec(ctx, ensureGateStateSQL); err != nil {
		return nil, fmt.Errorf("ensure gate_state table: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *GateStateStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the persisted latch dates. A missing row is an empty state.
func (s *GateStateStore) Load(ctx context.Context) (gate.State, error) {
	pool, err := s.getPool()
	if err != nil {
		return gate.State{}, err
	}

	var state gate.State
	row := pool.QueryRow(ctx, loadGateStateSQL)
	if scanErr := row.Scan(&state.LastAlertDate, &state.LastSummaryDate); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return gate.State{}, nil
		}
		return gate.State{}, fmt.Errorf("load gate state: %w", scanErr)
	}
	return state, nil
}

// Save upserts the latch dates.
func (s *GateStateStore) Save(ctx context.Context, state gate.State) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, saveGateStateSQL, state.LastAlertDate, state.LastSummaryDate); execErr != nil {
		return fmt.Errorf("save gate state: %w", execErr)
	}
	return nil
}

func (s *GateStateStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var _ gate.Store = (*GateStateStore)(nil)
