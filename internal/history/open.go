package history

import (
	"context"

	"github.com/nextlevelbuilder/researcher/internal/config"
)

// Open returns the configured store: Postgres when a DSN is set, SQLite
// otherwise, or Nop when history is disabled.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch {
	case cfg.Disabled:
		return Nop{}, nil
	case cfg.PostgresDSN != "":
		return NewPGStore(ctx, cfg.PostgresDSN)
	default:
		return NewSQLiteStore(cfg.SQLitePath)
	}
}
