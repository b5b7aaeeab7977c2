package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/voxbot/core/config"
	coredatabase "github.com/m3rciful/voxbot/core/database"
	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/state"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig) error
	// Backend overrides the configured state backend.
	Backend state.Backend

	Seeders []Seeder
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store *state.Store
	DB    *sqlx.DB
}

// Close releases the database pool, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, opens the state backend (connecting and
// migrating postgres when selected), hydrates the store and runs seeders.
// A corrupt snapshot aborts startup.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = openBackend(ctx, cfg, opts, res)
		if err != nil {
			return nil, err
		}
	}

	store, err := state.Open(ctx, backend, state.Options{
		RootAdmins:     cfg.Telegram.AdminIDs,
		DefaultVoiceID: cfg.Speech.DefaultVoiceID,
	})
	if err != nil {
		_ = res.Close()
		if errors.Is(err, state.ErrCorrupt) {
			return nil, fmt.Errorf("bootstrap: refusing to start on a corrupt state snapshot: %w", err)
		}
		return nil, fmt.Errorf("bootstrap: state load failed: %w", err)
	}
	res.Store = store

	for _, s := range opts.Seeders {
		if err := s.Seed(ctx, store); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
		}
	}
	return res, nil
}

func openBackend(ctx context.Context, cfg *coreconfig.Config, opts Options, res *Result) (state.Backend, error) {
	if cfg.State.Backend != coreconfig.StateBackendPostgres {
		return state.NewFileBackend(cfg.State.Path), nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	if err := migrate(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res.DB = db
	return state.NewPostgresBackend(db), nil
}
