// Package sqlbulk adapts a PostgreSQL connection into a batcher.Processor
// that writes an entire batch in one COPY statement via pq.CopyIn,
// rather than one INSERT per item.
package sqlbulk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/FairForge/batchd/internal/batcher"
)

// Record is one row to insert into Table.
type Record struct {
	Table   string
	Columns []string
	Values  []any
}

// Config configures the underlying connection pool.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c Config) dsn() string {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Adapter is a batcher.Processor[Record, int64] that bulk-inserts a
// batch of records in a single transaction using COPY. Every record in
// one Process call must share the same Table and Columns — the batcher
// engine this feeds should be configured per table.
type Adapter struct {
	db *sql.DB
}

// New opens a connection pool against cfg.
func New(cfg Config) (*Adapter, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("sqlbulk: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Adapter{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB, primarily so tests can
// substitute a sqlmock connection.
func NewFromDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// Close closes the underlying connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Process implements the batcher.Processor contract: COPY every record
// in the batch into its table inside one transaction. Every record
// resolves with the row count of the whole batch — COPY has no
// meaningful per-row identity to return.
func (a *Adapter) Process(ctx context.Context, records []Record) ([]batcher.Result[int64], error) {
	if len(records) == 0 {
		return nil, nil
	}

	table := records[0].Table
	columns := records[0].Columns

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlbulk: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return nil, fmt.Errorf("sqlbulk: prepare copy: %w", err)
	}

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Values...); err != nil {
			_ = stmt.Close()
			return nil, fmt.Errorf("sqlbulk: copy row: %w", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return nil, fmt.Errorf("sqlbulk: flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("sqlbulk: close copy statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlbulk: commit: %w", err)
	}

	results := make([]batcher.Result[int64], len(records))
	for i := range records {
		results[i] = batcher.Result[int64]{Value: int64(len(records))}
	}
	return results, nil
}
