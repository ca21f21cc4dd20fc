package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calendar-1m/project/internal/app/identity"
	"github.com/calendar-1m/project/internal/app/store"
	"github.com/calendar-1m/project/internal/platform/config"
	"github.com/calendar-1m/project/internal/platform/dbpool"
	"github.com/calendar-1m/project/internal/platform/firebaseutil"
)

const schemaTimeout = 30 * time.Second

// backend bundles the event store and identity repository that share one
// connection.
type backend struct {
	Gateway  store.Gateway
	Identity identity.Repository
	Ready    func(ctx context.Context) error
	Close    func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return &backend{
			Gateway:  store.NewMemoryGateway(),
			Identity: identity.NewMemoryRepository(),
			Ready:    func(context.Context) error { return nil },
			Close:    func() {},
		}, nil

	case config.BackendPostgres:
		pool, err := dbpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		gateway := store.NewPostgresGateway(pool)
		identityRepo := identity.NewPostgresRepository(pool)
		migrate := func(ctx context.Context) error {
			if err := identityRepo.EnsureSchema(ctx); err != nil {
				return err
			}
			return gateway.EnsureSchema(ctx)
		}
		if err := dbpool.Retry(ctx, logger, "postgres schema", schemaTimeout, migrate); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			Gateway:  gateway,
			Identity: identityRepo,
			Ready:    func(ctx context.Context) error { return dbpool.Ping(ctx, pool) },
			Close:    pool.Close,
		}, nil

	case config.BackendFirestore:
		client, err := firebaseutil.NewFirestore(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return &backend{
			Gateway:  store.NewFirestoreGateway(client, cfg.Store.Collection),
			Identity: identity.NewFirestoreRepository(client),
			Ready:    func(context.Context) error { return nil },
			Close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("close firestore failed", "err", err)
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// readiness joins the backend probe with an optional NATS probe.
func readiness(checks ...func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
