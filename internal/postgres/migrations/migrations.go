// Package migrations embeds the PostgreSQL schema.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in the order they must be applied.
var Files = []string{
	"001_create_projects.sql",
	"002_create_tasks.sql",
	"003_create_task_history.sql",
	"004_task_history_sequence.sql",
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply runs every migration in order. The statements are idempotent, so
// Apply may be called against an already migrated database.
// applied is called after each file succeeds and may be nil.
func Apply(ctx context.Context, db Execer, applied func(name string)) error {
	for _, f := range Files {
		sql, err := FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
		if applied != nil {
			applied(f)
		}
	}
	return nil
}
