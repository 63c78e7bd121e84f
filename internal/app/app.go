package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/config"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/gate"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/monitor"
	"fx-rate-alerts/internal/rate"
	"fx-rate-alerts/internal/scheduler"
	"fx-rate-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) pair() rate.Pair {
	return rate.NewPair(a.Config.Monitor.BaseCurrency, a.Config.Monitor.QuoteCurrency)
}

func (a *App) threshold() decimal.Decimal {
	return decimal.NewFromFloat(a.Config.Monitor.Threshold)
}

func (a *App) newFetcher() fetcher.RateFetcher {
	return fetcher.NewClient(fetcher.Options{
		BaseURL:        a.Config.Quote.BaseURL,
		APIKey:         a.Config.Quote.APIKey,
		Pair:           a.pair(),
		MaxAttempts:    a.Config.Monitor.MaxAttempts,
		AttemptTimeout: a.Config.Monitor.AttemptTimeout,
		UserAgent:      a.Config.Quote.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var channels []alerting.Notifier
	if cfg := a.Config.Alerting.Email; cfg.Enabled {
		channels = append(channels, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.Username,
			Password:   cfg.Password,
			From:       cfg.From,
			Recipients: cfg.Recipients,
		}, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	mn := alerting.NewMultiNotifier(channels...)
	if mn.Len() == 0 {
		return nil
	}
	return mn
}

// openGateStore returns the durable gate-state store when a database is
// configured, otherwise (nil, nil, nil) and the gate falls back to memory.
func (a *App) openGateStore(ctx context.Context) (gate.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, storage.Options{
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewGateStateStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*monitor.Service, func(), error) {
	store, closeStore, err := a.openGateStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; gate state is in-memory only")
	}

	g := gate.New(store, a.Logger)
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no notification channel configured; cycles will evaluate but not dispatch")
	}

	svc := monitor.New(sched, a.newFetcher(), g, notifier, a.threshold(), a.Logger)
	return svc, closeStore, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, closeStore, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if a.Config.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.ListenAddr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	a.Logger.Info().
		Str("pair", a.pair().String()).
		Str("threshold", a.threshold().String()).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
