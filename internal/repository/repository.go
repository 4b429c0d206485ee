package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when an insert or update trips a unique
	// constraint. Callers decide whether that means "retry with a new code".
	ErrUniqueViolation = errors.New("unique constraint violated")

	// ErrNoRowsUpdated is returned when a conditional update matched nothing,
	// i.e. a compare-and-swap lost.
	ErrNoRowsUpdated = errors.New("no rows updated")
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
	DriverName() string
}

// forUpdate returns the row lock clause for the executor's dialect. SQLite
// has no row locks; its transactions take the database write lock at BEGIN.
func forUpdate(db DBExecutor) string {
	if db.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// exec runs a rebound statement and classifies constraint errors.
func exec(ctx context.Context, db DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// execOne runs a conditional update and reports ErrNoRowsUpdated when it
// matched nothing.
func execOne(ctx context.Context, db DBExecutor, query string, args ...interface{}) error {
	res, err := exec(ctx, db, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNoRowsUpdated
	}
	return nil
}

func get(ctx context.Context, db DBExecutor, dest interface{}, query string, args ...interface{}) error {
	err := db.GetContext(ctx, dest, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func selectAll(ctx context.Context, db DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return db.SelectContext(ctx, dest, db.Rebind(query), args...)
}

// classify maps driver-specific constraint errors to ErrUniqueViolation,
// keeping the original error in the chain.
func classify(err error) error {
	if IsUniqueViolation(err) {
		return errors.Join(ErrUniqueViolation, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique or primary key violation
// from either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
