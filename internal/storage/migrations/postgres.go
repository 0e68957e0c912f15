package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// PostgresExecer is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx.
type PostgresExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApplyPostgres runs every embedded PostgreSQL migration in order.
// Migrations are idempotent, so this is safe on every start.
func ApplyPostgres(ctx context.Context, db PostgresExecer, log logrus.FieldLogger) error {
	files, err := Postgres()
	if err != nil {
		return err
	}

	for _, m := range files {
		if _, err := db.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		log.WithField("migration", m.Name).Debug("applied postgres migration")
	}
	return nil
}
