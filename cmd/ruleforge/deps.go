package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/audit"
	"github.com/Border-Link/immigration-ai-sub000/internal/cache"
	"github.com/Border-Link/immigration-ai-sub000/internal/extract"
	"github.com/Border-Link/immigration-ai-sub000/internal/gateway"
	"github.com/Border-Link/immigration-ai-sub000/internal/resilience"
	"github.com/Border-Link/immigration-ai-sub000/internal/scorer"
	"github.com/Border-Link/immigration-ai-sub000/internal/store"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return st, nil
	case "postgres", "":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initCache connects the response cache. Caching is best-effort; a failed
// Redis connection degrades to an in-process cache rather than failing the
// command.
func initCache(ctx context.Context) cache.Cache {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemory()
	}
	c, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		zap.L().Warn("redis unavailable, falling back to in-process cache", zap.Error(err))
		return cache.NewMemory()
	}
	return c
}

// initOrchestrator wires the extraction pipeline onto a store.
func initOrchestrator(ctx context.Context, st store.Store) *extract.Orchestrator {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	retry := resilience.FromConfig(
		cfg.Resilience.MaxAttempts,
		cfg.Resilience.InitialBackoffMs,
		cfg.Resilience.MaxBackoffMs,
		cfg.Resilience.Multiplier,
		cfg.Resilience.JitterFraction,
	)
	breaker := resilience.NewCircuitBreaker(resilience.BreakerFromConfig(
		cfg.Resilience.FailureThreshold,
		cfg.Resilience.ResetTimeoutSecs,
	))
	gw := gateway.New(client, cfg.Anthropic, retry, breaker)

	sc := scorer.New(scorer.Config{
		HighConfidenceThreshold: cfg.SLA.HighConfidenceThreshold,
		UrgentDays:              cfg.SLA.UrgentDays,
		DefaultDays:             cfg.SLA.DefaultDays,
	})

	return extract.New(
		st,
		initCache(ctx),
		gw,
		sc,
		audit.NewRecorder(st),
		cfg.Pipeline,
		time.Duration(cfg.Cache.TTLHours)*time.Hour,
	)
}
