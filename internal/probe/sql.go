package probe

import (
	"context"
	"database/sql"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// SQL is up when the database answers a ping.
type SQL struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) *SQL { return &SQL{db: db} }

// OpenPostgres opens a lazy, traced postgres handle; nothing connects until
// the first check.
func OpenPostgres(dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, xerrors.Wrap(ErrInvalidConfiguration, "postgres probe dsn is empty")
	}
	db, err := otelsql.Open("postgres", dsn, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfiguration, "postgres probe dsn: %v", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	return NewSQL(db), nil
}

func (p *SQL) Check(ctx context.Context, name string) (Result, error) {
	return Timed(func(ctx context.Context) (bool, error) {
		if err := p.db.PingContext(ctx); err != nil {
			log.FromContext(ctx).Debug(ctx, "sql probe failed", "health_check_name", name, "err", err)
			return false, nil
		}
		return true, nil
	}).Check(ctx, name)
}

func (p *SQL) Close() error { return p.db.Close() }
