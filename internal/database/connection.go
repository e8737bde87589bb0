package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver
	"github.com/nipeshtamang/ebus-sub002/internal/config"
)

// DB is the narrow handle used by the health check and the audit sink
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB implements DB using sqlx; repositories use the embedded *sqlx.DB
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection opens and verifies the Postgres pool
func NewConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Transaction-mode poolers (pgbouncer, Supavisor) drop prepared statements
	// between transactions; binary parameters skip the prepare round trip
	connectionURL := cfg.URL
	if strings.HasPrefix(connectionURL, "postgres") && !strings.Contains(connectionURL, "binary_parameters") {
		separator := "?"
		if strings.Contains(connectionURL, "?") {
			separator = "&"
		}
		connectionURL = connectionURL + separator + "binary_parameters=yes"
	}

	db, err := sqlx.Connect("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// WithTx runs fn inside a transaction. fn's error rolls back; otherwise commit.
func WithTx(db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowsAffected returns the affected row count, treating driver errors as zero
func rowsAffected(result sql.Result) int {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// liveSeatIndex allows one PENDING or BOOKED booking per seat
const liveSeatIndex = "uq_bookings_live_seat"

// isUniqueViolation reports whether err is a unique violation (23505) on the
// named constraint or index
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
