// Package storage owns the database connection pool used by migrated modules.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNotConfigured is returned when a storage-backed handler runs without a database
	ErrNotConfigured = errors.New("storage not configured")
	// ErrUnavailable marks a failure to reach the database
	ErrUnavailable = errors.New("storage unavailable")
)

// Options tune the connection pool
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// DB wraps gorm.DB for repositories and exposes Ping and Close.
type DB struct {
	gorm *gorm.DB
	sql  *sql.DB
}

// Open connects to Postgres and verifies the connection with a ping before
// returning. The pool is meant to be created once per process.
func Open(ctx context.Context, dsn string, opts Options) (*DB, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	return open(ctx, postgres.Open(dsn), opts)
}

// OpenConn builds a DB on top of an existing *sql.DB, used by tests with a mocked driver
func OpenConn(ctx context.Context, conn *sql.DB, opts Options) (*DB, error) {
	return open(ctx, postgres.New(postgres.Config{Conn: conn}), opts)
}

func open(ctx context.Context, dialector gorm.Dialector, opts Options) (*DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sdb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sdb.SetConnMaxLifetime(30 * time.Minute)
	if opts.MaxOpenConns > 0 {
		sdb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sdb.SetMaxIdleConns(opts.MaxIdleConns)
	}

	db := &DB{gorm: gdb, sql: sdb}
	if err := db.Ping(ctx); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks that the database answers a trivial query
func (d *DB) Ping(ctx context.Context) error {
	var one int
	if err := d.gorm.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the pool
func (d *DB) Close() error { return d.sql.Close() }

// wrapErr prefixes err with op and marks connectivity failures with
// ErrUnavailable so callers can tell an outage from a bad query
func wrapErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
