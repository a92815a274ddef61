package checks

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpenPostgres opens a small pool sized for health checking only.
// The connection is not established until the first ping.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerrors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Postgres pings db.
func Postgres(db Pinger) health.CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return xerrors.Wrap(err, "postgres ping")
		}
		return nil
	}
}
