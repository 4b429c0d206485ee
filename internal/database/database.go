package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kkkkikiki/loyalty/internal/config"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB holds database connections
type DB struct {
	Conn *sqlx.DB
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	driver := cfg.Database.Driver
	conn, err := sqlx.Connect(driver, cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	// Configure connection pool
	switch driver {
	case "sqlite3":
		// SQLite has a single writer; one pooled connection turns lock
		// contention into queueing inside database/sql.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	default:
		conn.SetMaxOpenConns(cfg.Database.MaxConns)
		conn.SetMaxIdleConns(cfg.Database.MinConns)
		conn.SetConnMaxLifetime(time.Hour)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("Successfully connected to %s", driver)

	return &DB{
		Conn: conn,
	}, nil
}

// migrate applies the embedded schema for the connection's dialect. Every
// statement is idempotent so this runs on each start.
func migrate(ctx context.Context, conn *sqlx.DB) error {
	file := "schema/postgres.sql"
	if conn.DriverName() == "sqlite3" {
		file = "schema/sqlite.sql"
	}
	schema, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", file, err)
	}

	for _, stmt := range splitStatements(string(schema)) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// splitStatements breaks a schema file on semicolons, dropping comment-only
// fragments. The schema files contain no semicolons inside literals.
func splitStatements(schema string) []string {
	var stmts []string
	for _, part := range strings.Split(schema, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// Ping checks that the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.Conn.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", db.Conn.DriverName(), err)
	}

	return nil
}
