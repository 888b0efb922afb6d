package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenshop/internal/footprint"
	"github.com/sells-group/greenshop/internal/resilience"
	"github.com/sells-group/greenshop/internal/store"
)

// initStore opens the configured store, retrying transient connection
// failures with the store retry policy.
func initStore(ctx context.Context) (store.Store, error) {
	retry := resilience.FromConfig(cfg.Store.Retry)
	retry.OnRetry = resilience.RetryLogger("cmd", "open_store")
	return resilience.DoVal(ctx, retry, openStore)
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "greenshop.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// appEnv holds the store and the engine service shared by the commands.
type appEnv struct {
	Store     store.Store
	Footprint *footprint.Service
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates config for mode, opens and migrates the store, and
// builds the footprint service. Callers should defer env.Close().
func initApp(ctx context.Context, mode string, opts ...footprint.Option) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	opts = append([]footprint.Option{footprint.WithRetry(resilience.FromConfig(cfg.Store.Retry))}, opts...)
	return &appEnv{
		Store:     st,
		Footprint: footprint.New(st, st, st, cfg.Scorer, opts...),
	}, nil
}
