package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
)

//go:embed sql/*.sql
var embedded embed.FS

// Sources returns the embedded goose migration files, rooted at their directory.
func Sources() (fs.FS, error) {
	return fs.Sub(embedded, "sql")
}

// provider is the part of *goose.Provider the runner drives.
type provider interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	Down(ctx context.Context) (*goose.MigrationResult, error)
	Status(ctx context.Context) ([]*goose.MigrationStatus, error)
}

// Runner applies the embedded migrations with goose. Each run holds a
// PostgreSQL session advisory lock, so concurrent runs from several processes
// apply every migration once; runs within one process are also serialized.
type Runner struct {
	mu       sync.Mutex
	provider provider
	logger   *logging.StructuredLogger
}

// NewRunner creates a runner over the embedded migrations
func NewRunner(db *database.PostgresDB, logger *logging.StructuredLogger) (*Runner, error) {
	fsys, err := Sources()
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create migration lock: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectPostgres, db.DB().DB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return &Runner{provider: p, logger: logger}, nil
}

// Applied returns the applied migration names, oldest first.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	applied := []string{}
	for _, s := range statuses {
		if s.State == goose.StateApplied {
			applied = append(applied, migrationName(s.Source))
		}
	}
	return applied, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns the names it applied. On failure the migrations applied before the
// failing one are returned along with the error.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := r.provider.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if !errors.As(err, &partial) {
			r.logger.Error(ctx, "[MIGRATE_ERROR] Migration run failed", logging.Fields{}, err)
			return nil, fmt.Errorf("migration failed: %w", err)
		}

		applied := r.logApplied(ctx, partial.Applied)
		failed := ""
		if partial.Failed != nil {
			failed = migrationName(partial.Failed.Source)
		}
		r.logger.Error(ctx, "[MIGRATE_ERROR] Migration failed", logging.Fields{
			"version": failed,
		}, partial.Err)
		return applied, fmt.Errorf("migration %s failed: %w", failed, partial.Err)
	}

	return r.logApplied(ctx, results), nil
}

// Down rolls back the most recently applied migration and returns its name,
// or "" when nothing is applied.
func (r *Runner) Down(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("rollback failed: %w", err)
	}

	name := migrationName(result.Source)
	r.logger.Info(ctx, "[MIGRATE_DOWN] Migration rolled back", logging.Fields{
		"version":     name,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return name, nil
}

func (r *Runner) logApplied(ctx context.Context, results []*goose.MigrationResult) []string {
	applied := make([]string, 0, len(results))
	for _, res := range results {
		name := migrationName(res.Source)
		r.logger.Info(ctx, "[MIGRATE_UP] Migration applied", logging.Fields{
			"version":     name,
			"duration_ms": res.Duration.Milliseconds(),
		})
		applied = append(applied, name)
	}
	return applied
}

// migrationName is the source file name without its extension, e.g. 001_initial_schema.
func migrationName(src *goose.Source) string {
	if src == nil {
		return ""
	}
	base := path.Base(src.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}
