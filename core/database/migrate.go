package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/logger"
)

const readyTimeout = 30 * time.Second

// ErrDirtySchema means a previous migration stopped halfway. The state
// backend refuses to run on such a schema; fix it with `migrate force`.
var ErrDirtySchema = errors.New("database: schema is dirty")

type migrationFile struct {
	version uint64
	name    string
}

// RunMigrations brings the bot_state schema up to date using the files in
// cfg.MigrationsDir. A relative directory is resolved against the working
// directory.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig) error {
	if err := WaitForPostgres(ctx, DSN(cfg), readyTimeout); err != nil {
		logMigration(ctx, slog.LevelError, "db.migrate", "fail", slog.String("err", err.Error()))
		return fmt.Errorf("database not ready: %w", err)
	}

	dir, err := resolveDir(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}
	files := scanMigrations(dir)
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %s", dir)
	}
	preview, truncated := logger.SummarizeStrings(fileNames(files), 6)
	logMigration(ctx, slog.LevelDebug, "resolve", "ok",
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), URL(cfg))
	if err != nil {
		logMigration(ctx, slog.LevelError, "db.migrate", "fail", slog.String("err", err.Error()))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		logMigration(ctx, slog.LevelError, "db.migrate", "fail",
			slog.Uint64("version", uint64(from)),
			slog.String("cause", "dirty"),
		)
		return fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logMigration(ctx, slog.LevelError, "apply", "fail",
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	to := from
	if upErr == nil {
		if v, _, err := m.Version(); err == nil {
			to = v
		}
	}
	applied := selectApplied(fileNames(files), uint64(from), uint64(to))
	if len(applied) > 0 {
		preview, truncated := logger.SummarizeStrings(applied, 6)
		logMigration(ctx, slog.LevelDebug, "apply", "ok",
			slog.Int("files_total", len(applied)),
			slog.String("files_preview", preview),
			slog.Bool("files_truncated", truncated),
		)
	}
	logMigration(ctx, slog.LevelInfo, "summary", "ok",
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func logMigration(ctx context.Context, level slog.Level, event, status string, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{
		slog.String("event", event),
		slog.String("status", status),
	}, attrs...)
	logger.MIG.LogAttrs(ctx, level, "", attrs...)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = coreconfig.DefaultMigrationsDir
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Abs(dir)
}

// scanMigrations lists up migrations in dir ordered by version.
func scanMigrations(dir string) []migrationFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		files = append(files, migrationFile{version: parseVersion(e.Name()), name: e.Name()})
	}
	slices.SortFunc(files, func(a, b migrationFile) int {
		if c := cmp.Compare(a.version, b.version); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	return files
}

func fileNames(files []migrationFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// selectApplied returns the files with versions in (from, to].
func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
