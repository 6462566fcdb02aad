package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/flow-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/flow-alert-service/internal/adapter/nwps"
	"github.com/couchcryptid/flow-alert-service/internal/adapter/push"
	"github.com/couchcryptid/flow-alert-service/internal/config"
	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/fixture"
	"github.com/couchcryptid/flow-alert-service/internal/forecast"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
	"github.com/couchcryptid/flow-alert-service/internal/pipeline"
	"github.com/couchcryptid/flow-alert-service/internal/resolver"
	"github.com/couchcryptid/flow-alert-service/internal/store/postgres"
	"github.com/couchcryptid/flow-alert-service/internal/store/sqlite"
	"github.com/couchcryptid/flow-alert-service/internal/threshold"
)

// store is everything the service needs from a backend.
type store interface {
	pipeline.PreferencesStore
	pipeline.TokenStore
	pipeline.HistoryReader
	pipeline.HistoryWriter
	threshold.Store
	forecast.Store
	resolver.Store
	fixture.Writer
	ListAlerts(ctx context.Context, userID string, limit int) ([]domain.AlertRecord, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		s, err := postgres.New(ctx, cfg.DatabaseURL, cfg.DBPoolMaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// app holds the wired service components.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store
	pipeline  *pipeline.Pipeline
	publisher *kafkaadapter.Publisher
}

// newApp opens the store and wires the pipeline. The schema is created if
// missing, so a fresh SQLite file works without a separate migrate step.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.StoreDriver, err)
	}

	// Notifier (feature-flagged via PUSH_ENABLED / PUSH_ENDPOINT).
	var notifier pipeline.Notifier
	if cfg.PushEnabled {
		n, err := push.NewExpoNotifier(cfg.PushEndpoint, cfg.PushTimeout, logger, push.WithAccessToken(cfg.PushAccessToken))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		notifier = n
		logger.Info("push notifications enabled", "endpoint", cfg.PushEndpoint, "timeout", cfg.PushTimeout)
	} else {
		notifier = push.NewLogNotifier(logger)
		logger.Info("push notifications disabled, alerts are logged only")
	}

	a := &app{cfg: cfg, logger: logger, store: st}

	var publisher pipeline.AlertPublisher
	if cfg.KafkaEnabled() {
		a.publisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = a.publisher
		logger.Info("alert publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	}

	clock := clockwork.NewRealClock()
	source := nwps.NewClient(cfg.ForecastBaseURL, cfg.ForecastTimeout, cfg.ForecastRateLimit, metrics, logger)

	a.pipeline = pipeline.New(pipeline.Deps{
		Preferences: st,
		Resolver:    resolver.New(st, logger),
		Thresholds:  threshold.NewCache(st, cfg.ThresholdCacheTTL, clock, metrics, logger),
		Forecasts:   forecast.NewCache(st, source, cfg.ForecastCacheTTL, clock, metrics, logger),
		Dedup:       pipeline.NewDedupGuard(st, cfg.DedupWindow, clock),
		Dispatcher:  pipeline.NewDispatcher(st, notifier, st, publisher, clock, metrics, logger),
	}, cfg.UserConcurrency, clock, logger, metrics)

	return a, nil
}

// CheckReadiness reports the store as the service's readiness.
func (a *app) CheckReadiness(ctx context.Context) error {
	return a.store.Ping(ctx)
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}
