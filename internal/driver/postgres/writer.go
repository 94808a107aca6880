package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// Writer implements driver.Writer for PostgreSQL. Full loads run inside a
// single transaction (truncate + copy); upserts stage into a temporary table
// and merge with INSERT ... ON CONFLICT.
type Writer struct {
	pool   *pgxpool.Pool
	config *dbconfig.ConnConfig
	opts   driver.WriterOptions
}

// NewWriter creates a new PostgreSQL writer.
func NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (*Writer, error) {
	dsn := BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, classify(fmt.Errorf("pinging database: %w", err), syncerr.ErrDestinationUnavailable)
	}

	logging.Debug("Connected to PostgreSQL destination: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Writer{pool: pool, config: cfg, opts: opts}, nil
}

// ReplaceAll truncates the target and copies every row from the cursor into
// it. Both steps run in one transaction, so readers never observe a
// half-loaded table.
func (w *Writer) ReplaceAll(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	target := QualifyTable(w.config.Schema, e.Target())

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+target); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	cols := cur.Columns()
	src := &copyFromCursor{cur: cur, width: len(cols)}
	n, err := tx.CopyFrom(ctx, tableName(w.config.Schema, e.Target()), cols, src)
	if err != nil {
		if src.Err() != nil {
			return 0, src.Err()
		}
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	logging.Debug("Replaced %s with %d rows", e.Target(), n)
	return n, nil
}

// Upsert copies the cursor into a temporary staging table and merges it into
// the target with INSERT ... ON CONFLICT DO UPDATE keyed on the primary key.
func (w *Writer) Upsert(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	cols := cur.Columns()
	if err := checkKeyColumns(e, cols); err != nil {
		return 0, err
	}

	target := QualifyTable(w.config.Schema, e.Target())
	staging := stagingName(e.Target())

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}
	defer tx.Rollback(ctx)

	create := fmt.Sprintf("CREATE TEMPORARY TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		QuoteIdentifier(staging), target)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	src := &copyFromCursor{cur: cur, width: len(cols)}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cols, src)
	if err != nil {
		if src.Err() != nil {
			return 0, src.Err()
		}
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s%s",
		target,
		strings.Join(QuoteAll(cols), ", "),
		strings.Join(QuoteAll(cols), ", "),
		QuoteIdentifier(staging),
		conflictClause(e, cols))
	if _, err := tx.Exec(ctx, merge); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	logging.Debug("Upserted %d rows into %s", n, e.Target())
	return n, nil
}

// Ping verifies connectivity.
func (w *Writer) Ping(ctx context.Context) error {
	if err := w.pool.Ping(ctx); err != nil {
		return classify(err, syncerr.ErrDestinationUnavailable)
	}
	return nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}

// copyFromCursor adapts driver.Cursor to pgx.CopyFromSource.
type copyFromCursor struct {
	cur   driver.Cursor
	width int
	row   []any
	err   error
	done  bool
}

func (c *copyFromCursor) Next() bool {
	if c.done {
		return false
	}
	row, err := c.cur.Next()
	if err == io.EOF {
		c.done = true
		return false
	}
	if err != nil {
		c.err = err
		c.done = true
		return false
	}
	if len(row) != c.width {
		c.err = syncerr.Wrap(syncerr.ErrSchemaMismatch,
			fmt.Errorf("row has %d values, expected %d", len(row), c.width))
		c.done = true
		return false
	}
	c.row = row
	return true
}

func (c *copyFromCursor) Values() ([]any, error) {
	return c.row, nil
}

func (c *copyFromCursor) Err() error {
	return c.err
}

// conflictClause builds the ON CONFLICT clause for an upsert. Tables that
// carry nothing but their key fall back to DO NOTHING.
func conflictClause(e *driver.Entity, cols []string) string {
	keys := make(map[string]bool, len(e.PrimaryKey))
	for _, k := range e.PrimaryKey {
		keys[k] = true
	}

	var sets []string
	for _, c := range cols {
		if keys[c] {
			continue
		}
		q := QuoteIdentifier(c)
		sets = append(sets, q+" = EXCLUDED."+q)
	}

	conflict := " ON CONFLICT (" + strings.Join(QuoteAll(e.PrimaryKey), ", ") + ")"
	if len(sets) == 0 {
		return conflict + " DO NOTHING"
	}
	return conflict + " DO UPDATE SET " + strings.Join(sets, ", ")
}

func checkKeyColumns(e *driver.Entity, cols []string) error {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	for _, k := range e.PrimaryKey {
		if !present[k] {
			return syncerr.Wrap(syncerr.ErrSchemaMismatch,
				fmt.Errorf("primary key column %q missing from source result for %s", k, e.Name))
		}
	}
	return nil
}

// stagingName derives a deterministic temp-table name that stays inside the
// 63-byte identifier limit.
func stagingName(table string) string {
	sum := sha256.Sum256([]byte(table))
	return "_stg_" + truncName(table, 40) + "_" + hex.EncodeToString(sum[:4])
}

func truncName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tableName(schema, table string) pgx.Identifier {
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}
