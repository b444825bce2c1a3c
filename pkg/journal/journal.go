// Package journal keeps a write-only audit trail of the events the dispatcher applied.
// It is never read back into a book.
package journal

import (
	"time"

	"github.com/joripage/l2book/pkg/infra"
	postgres_wrapper "github.com/joripage/l2book/pkg/infra/postgres"
	"go.uber.org/zap"
)

type Config struct {
	Enabled bool                             `yaml:"enabled"`
	DB      *postgres_wrapper.PostgresConfig `yaml:"db"`
	Writer  WriterConfig                     `yaml:"writer"`
	// AutoMigrate applies migration/sql before opening the writer.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// Open connects to the journal database and returns a writer ready to Run.
func Open(cfg *Config, logger *zap.Logger) (*Writer, error) {
	if cfg.AutoMigrate {
		err := infra.GetMigrateTool().MigrateWithBackoff(infra.DefaultMigrationSource, cfg.DB.MigrationConnURL, time.Minute)
		if err != nil {
			return nil, err
		}
	}

	db, err := postgres_wrapper.InitPostgresWithBackoff(cfg.DB)
	if err != nil {
		return nil, err
	}
	return NewWriter(NewBookEventSQLRepo(db, cfg.Writer.BatchSize), cfg.Writer, logger), nil
}
