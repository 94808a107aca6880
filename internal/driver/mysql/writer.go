package mysql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// Writer implements driver.Writer for MySQL/MariaDB.
type Writer struct {
	db           *sql.DB
	config       *dbconfig.ConnConfig
	rowsPerBatch int
}

// NewWriter creates a new MySQL writer.
func NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (*Writer, error) {
	dsn := BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("pinging database: %w", err), syncerr.ErrDestinationUnavailable)
	}

	logging.Debug("Connected to MySQL target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	rowsPerBatch := opts.RowsPerBatch
	if rowsPerBatch <= 0 {
		rowsPerBatch = driver.DefaultRowsPerBatch
	}

	return &Writer{db: db, config: cfg, rowsPerBatch: rowsPerBatch}, nil
}

// ReplaceAll loads the cursor into a staging table and swaps it in with an
// atomic RENAME TABLE, so a concurrent reader never observes an empty or
// half-loaded table.
func (w *Writer) ReplaceAll(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	target := e.Target()
	staging := stagingName(target, "stg")
	old := stagingName(target, "old")

	// Drop leftovers from an earlier failed swap.
	for _, t := range []string{staging, old} {
		if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(t)); err != nil {
			return 0, classify(err, syncerr.ErrDestinationUnavailable)
		}
	}

	if _, err := w.db.ExecContext(ctx,
		fmt.Sprintf("CREATE TABLE %s LIKE %s", QuoteIdentifier(staging), QuoteIdentifier(target))); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	rows, err := w.insertBatches(ctx, staging, cur, "")
	if err != nil {
		w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(staging))
		return 0, err
	}

	// Atomic multi-table rename publishes the new content in one step.
	_, err = w.db.ExecContext(ctx, fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s",
		QuoteIdentifier(target), QuoteIdentifier(old),
		QuoteIdentifier(staging), QuoteIdentifier(target)))
	if err != nil {
		w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(staging))
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(old)); err != nil {
		logging.Warn("Failed to drop retired table %s: %v", old, err)
	}

	return rows, nil
}

// Upsert applies rows with INSERT ... ON DUPLICATE KEY UPDATE. Re-applying
// the same rows leaves the table unchanged.
func (w *Writer) Upsert(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	if err := checkKeyColumns(e, cur.Columns()); err != nil {
		return 0, err
	}
	return w.insertBatches(ctx, e.Target(), cur, upsertSuffix(e, cur.Columns()))
}

// insertBatches streams the cursor into table in batches. suffix, when
// non-empty, is appended to each INSERT (the ON DUPLICATE KEY clause).
func (w *Writer) insertBatches(ctx context.Context, table string, cur driver.Cursor, suffix string) (int64, error) {
	cols := cur.Columns()
	colList := strings.Join(QuoteAll(cols), ", ")
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"

	var total int64
	for {
		batch, err := driver.ReadBatch(cur, w.rowsPerBatch)
		if err != nil && err != io.EOF {
			return total, classify(err, syncerr.ErrSourceUnavailable)
		}
		done := err == io.EOF

		if len(batch) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat(placeholder+",", len(batch)), ",")
			args := make([]any, 0, len(batch)*len(cols))
			for _, row := range batch {
				args = append(args, row...)
			}
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s", QuoteIdentifier(table), colList, placeholders, suffix)
			if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
				return total, classify(err, syncerr.ErrDestinationUnavailable)
			}
			total += int64(len(batch))
		}

		if done {
			return total, nil
		}
	}
}

// Ping verifies connectivity.
func (w *Writer) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return classify(err, syncerr.ErrDestinationUnavailable)
	}
	return nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	return w.db.Close()
}

// upsertSuffix builds the ON DUPLICATE KEY UPDATE clause over non-key
// columns. A key-only table degrades to a self-assignment no-op.
func upsertSuffix(e *driver.Entity, cols []string) string {
	isPK := make(map[string]bool, len(e.PrimaryKey))
	for _, pk := range e.PrimaryKey {
		isPK[pk] = true
	}

	var assignments []string
	for _, col := range cols {
		if !isPK[col] {
			q := QuoteIdentifier(col)
			assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
	}
	if len(assignments) == 0 {
		q := QuoteIdentifier(e.PrimaryKey[0])
		assignments = append(assignments, fmt.Sprintf("%s = %s", q, q))
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")
}

// checkKeyColumns verifies that every primary key column is present in the
// fetched column set.
func checkKeyColumns(e *driver.Entity, cols []string) error {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	for _, pk := range e.PrimaryKey {
		if !present[pk] {
			return syncerr.Wrap(syncerr.ErrSchemaMismatch,
				fmt.Errorf("primary key column %q not present in fetched columns", pk))
		}
	}
	return nil
}

// stagingName derives a staging table name for target. Hashed so the name
// stays within identifier limits for long table names.
func stagingName(target, kind string) string {
	hash := sha256.Sum256([]byte(target))
	return fmt.Sprintf("_%s_%s_%x", kind, truncName(target, 40), hash[:4])
}

func truncName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
