package bootstrap

import (
	"context"
	"log/slog"

	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/state"
)

// Seeder loads initial data into the hydrated store.
type Seeder interface {
	Seed(ctx context.Context, store *state.Store) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, store *state.Store) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, store *state.Store) error {
	return f(ctx, store)
}

// CredentialSeeder adds configured API keys that the pool does not hold yet.
// Keys removed at runtime come back on the next start while they stay in
// configuration.
func CredentialSeeder(keys []string) Seeder {
	return SeederFunc(func(ctx context.Context, store *state.Store) error {
		if len(keys) == 0 {
			return nil
		}
		added, err := store.SeedCredentials(ctx, keys)
		if err != nil {
			return err
		}
		logger.State.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "state.seed"),
			slog.String("status", "ok"),
			slog.Int("configured", len(keys)),
			slog.Int("added", added),
		)
		return nil
	})
}
