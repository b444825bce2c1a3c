package infra

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

const DefaultMigrationSource = "file://migration/sql"

// IMigrateTool migrates a schema to the latest version.
type IMigrateTool interface {
	Migrate(source string, connStr string) error
	MigrateWithBackoff(source string, connStr string, maxElapsed time.Duration) error
}

type migrateTool struct {
	mu sync.Mutex
}

var (
	once      sync.Once    // nolint
	singleton IMigrateTool // nolint
)

// GetMigrateTool get singleton instance for migrate tool
func GetMigrateTool() IMigrateTool { // nolint
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

// Migrate runs all pending up migrations. A dirty version left by a failed run is
// forced back one step and retried.
func (mt *migrateTool) Migrate(source string, connStr string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	zap.S().Infow("migrating", "source", source)

	mg, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close() // nolint

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		zap.S().Warnw("dirty migration version, forcing back", "version", version)
		if err := mg.Force(int(version) - 1); err != nil {
			return fmt.Errorf("force version %d: %w", version-1, err)
		}
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	zap.S().Info("migration done")
	return nil
}

// MigrateWithBackoff retries Migrate while the database is coming up.
func (mt *migrateTool) MigrateWithBackoff(source string, connStr string, maxElapsed time.Duration) error {
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = maxElapsed
	return backoff.Retry(func() error {
		err := mt.Migrate(source, connStr)
		if err != nil {
			zap.S().Warnf("migrate failed: %v", err)
		}
		return err
	}, boff)
}
