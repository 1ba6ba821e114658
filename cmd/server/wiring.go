package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"faucet/internal/kv"
	"faucet/internal/platform/config"
	"faucet/internal/platform/postgres"
	"faucet/internal/platform/redis"
	"faucet/pkg/platform/audit"
	"faucet/pkg/platform/audit/kafka"
	"faucet/pkg/platform/audit/publisher"
	auditmemory "faucet/pkg/platform/audit/store/memory"
)

const auditBufferSize = 1024

// appStore is the configured kv.Store plus its teardown.
type appStore struct {
	kv.Store
	fallback *kv.FallbackStore
	closers  []func()
}

func (s *appStore) degraded() bool {
	return s.fallback != nil && s.fallback.Degraded()
}

func (s *appStore) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStore builds the durable backend named by STORE_BACKEND behind a
// FallbackStore, or a plain MemoryStore for the memory backend.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*appStore, error) {
	out := &appStore{}
	var primary kv.Store

	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory store; state is lost on restart")
		out.Store = kv.NewMemory()
		return out, nil

	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		out.closers = append(out.closers, func() { _ = client.Close() })
		primary = kv.NewRedis(client.Client)

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, func() { _ = db.Close() })
		pg := kv.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			out.close()
			return nil, fmt.Errorf("ensure kv schema: %w", err)
		}
		cleanupCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		out.closers = append(out.closers, cancel)
		go func() {
			if err := pg.StartCleanup(cleanupCtx, cfg.Store.CleanupInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kv cleanup stopped", "error", err)
			}
		}()
		primary = pg

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	fallback, err := kv.NewFallback(primary, nil,
		kv.WithLogger(log),
		kv.WithMetrics(kv.NewMetrics(reg)),
		kv.WithOpTimeout(cfg.Store.OpTimeout),
	)
	if err != nil {
		out.close()
		return nil, err
	}
	out.Store = fallback
	out.fallback = fallback
	return out, nil
}

// auditSink is the async publisher plus the teardown of its store.
type auditSink struct {
	*publisher.Publisher
	closeStore func()
}

func (a *auditSink) close() {
	_ = a.Publisher.Close()
	if a.closeStore != nil {
		a.closeStore()
	}
}

// openAudit ships events to Kafka when brokers are configured and keeps a
// bounded in-process log otherwise.
func openAudit(ctx context.Context, cfg config.Audit, log *slog.Logger) (*auditSink, error) {
	var (
		store      audit.Store
		closeStore func()
	)
	if brokers := cfg.BrokerList(); len(brokers) > 0 {
		k, err := kafka.New(ctx, kafka.Config{Brokers: brokers, Topic: cfg.Topic})
		if err != nil {
			return nil, fmt.Errorf("connect audit brokers: %w", err)
		}
		store, closeStore = k, k.Close
	} else {
		log.Info("KAFKA_BROKERS not set; audit events are kept in memory")
		store = auditmemory.NewInMemoryStore()
	}
	pub := publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	return &auditSink{Publisher: pub, closeStore: closeStore}, nil
}
