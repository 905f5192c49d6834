package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/polisai/hookgate/internal/resilience"
	"github.com/polisai/hookgate/pkg/api"
	"github.com/polisai/hookgate/pkg/config"
	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/engine"
	"github.com/polisai/hookgate/pkg/events"
	"github.com/polisai/hookgate/pkg/oracle"
	"github.com/polisai/hookgate/pkg/storage"
	"github.com/polisai/hookgate/pkg/telemetry"
)

// app owns the long-lived components wired from configuration.
type app struct {
	engine  *engine.Engine
	handler http.Handler
	metrics *telemetry.HTTPMetrics

	closers []func() error
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, metrics: telemetry.NewHTTPMetrics()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var nc *nats.Conn
	if cfg.Storage.Driver == config.DriverNATS || cfg.Events.NATSSubject != "" {
		nc, err = nats.Connect(cfg.Storage.URL, nats.Name("hookgate"))
		if err != nil {
			return nil, fmt.Errorf("connect to nats %s: %w", cfg.Storage.URL, err)
		}
		a.closers = append(a.closers, func() error { return nc.Drain() })
	}

	store, err := a.openStore(ctx, cfg.Storage, nc)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	balances, err := a.openOracle(cfg.Oracle)
	if err != nil {
		return nil, err
	}

	var sinks events.Fanout
	if cfg.Events.LogApprovals {
		sinks = append(sinks, events.NewLogSink(logger))
	}
	if cfg.Events.NATSSubject != "" {
		sinks = append(sinks, events.NewNATSPublisher(nc, cfg.Events.NATSSubject))
	}
	sinks = append(sinks, approvalCounter{a.metrics})

	params, err := cfg.Governance.Params()
	if err != nil {
		return nil, err
	}
	a.engine, err = engine.New(engine.Config{
		Store:  store,
		Oracle: balances,
		Events: sinks,
		Logger: logger,
		Params: params,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Governance.AutoInitialize {
		if err := a.autoInitialize(ctx, cfg.Governance); err != nil {
			return nil, err
		}
	}

	a.handler = api.New(api.Config{
		Engine:  a.engine,
		Limiter: resilience.NewRateLimiter(cfg.Server.RateLimits),
		Metrics: a.metrics,
		Logger:  logger,
	}).Handler()

	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.StorageConfig, nc *nats.Conn) (storage.Store, error) {
	if cfg.Driver != config.DriverNATS {
		a.logger.Warn("Using in-memory storage; governance state is lost on restart")
		return storage.NewMemoryStore(), nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	store, err := storage.NewKVStore(ctx, js, cfg.Bucket,
		storage.WithConflictRetry(cfg.RetryConfig()),
		storage.WithKVLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open ledger bucket %s: %w", cfg.Bucket, err)
	}
	return store, nil
}

func (a *app) openOracle(cfg config.OracleConfig) (domain.BalanceOracle, error) {
	if cfg.LedgerFile == "" {
		a.logger.Warn("No ledger_file configured; every vote will be rejected")
		return oracle.NewLedger(), nil
	}

	ledger, err := oracle.NewFileLedger(cfg.LedgerFile,
		oracle.WithLedgerLogger(a.logger),
		oracle.WithReloadHook(a.metrics.ObserveOracleReload),
	)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	a.closers = append(a.closers, ledger.Close)
	if cfg.BreakerFailures == 0 {
		return ledger, nil
	}
	return oracle.NewGuarded(ledger, cfg.BreakerConfig(), a.logger), nil
}

// autoInitialize creates the whitelist for the configured admin unless it
// already exists.
func (a *app) autoInitialize(ctx context.Context, cfg config.GovernanceConfig) error {
	admin, ok, err := cfg.AdminKey()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("auto_initialize requires admin")
	}

	_, err = a.engine.Initialize(ctx, admin)
	switch {
	case err == nil:
		a.logger.Info("Whitelist initialized at startup", "admin", admin.String())
	case errors.Is(err, domain.ErrAlreadyInitialized):
		a.logger.Debug("Whitelist already initialized")
	default:
		return fmt.Errorf("initialize whitelist: %w", err)
	}
	return nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Failed to close component", "error", err)
		}
	}
	a.closers = nil
}

// approvalCounter feeds committed approvals into the Prometheus registry.
type approvalCounter struct {
	metrics *telemetry.HTTPMetrics
}

func (c approvalCounter) Publish(context.Context, domain.HookApproved) error {
	c.metrics.ObserveApproval()
	return nil
}
