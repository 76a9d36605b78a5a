package results

import (
	"context"
	"log/slog"
	"strings"
)

// Store persists result records keyed by job id. Put fully replaces any
// prior record for the same key (last-write-wins, no merge), which makes
// duplicate processing after redelivery safe. Implementations must tolerate
// concurrent writers; each job owns its own key.
type Store interface {
	Put(ctx context.Context, rec Record) error
	// Get returns nil when no record exists for jobID.
	Get(ctx context.Context, jobID string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open selects the store implementation by DSN scheme: postgres:// URLs get
// the pgx-backed store, anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn, logger)
	}
	return OpenSQLite(dsn, logger)
}
