package postgres

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Reader implements driver.Reader for PostgreSQL.
type Reader struct {
	pool   *pgxpool.Pool
	config *dbconfig.ConnConfig
}

// NewReader creates a new PostgreSQL reader.
func NewReader(cfg *dbconfig.ConnConfig, maxConns int) (*Reader, error) {
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
		return nil, classify(fmt.Errorf("pinging database: %w", err), syncerr.ErrSourceUnavailable)
	}

	logging.Debug("Connected to PostgreSQL source: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Reader{pool: pool, config: cfg}, nil
}

// FetchFull returns all current rows, ordered by the watermark column when
// the entity has one.
func (r *Reader) FetchFull(ctx context.Context, e *driver.Entity) (driver.Cursor, error) {
	query := fmt.Sprintf("SELECT %s FROM %s%s",
		columnList(e), QualifyTable(r.config.Schema, e.Source()), orderClause(e))
	return r.query(ctx, query)
}

// FetchChanged returns rows strictly above since, ordered ascending.
func (r *Reader) FetchChanged(ctx context.Context, e *driver.Entity, since watermark.Value) (driver.Cursor, error) {
	arg, err := since.Arg()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1%s",
		columnList(e), QualifyTable(r.config.Schema, e.Source()), QuoteIdentifier(e.WatermarkColumn), orderClause(e))
	return r.query(ctx, query, arg)
}

func (r *Reader) query(ctx context.Context, query string, args ...any) (driver.Cursor, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, syncerr.ErrSourceUnavailable)
	}
	return newPgxCursor(rows), nil
}

// Ping verifies connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return classify(err, syncerr.ErrSourceUnavailable)
	}
	return nil
}

// Close closes the connection pool.
func (r *Reader) Close() error {
	r.pool.Close()
	return nil
}

// pgxCursor adapts pgx.Rows to driver.Cursor.
type pgxCursor struct {
	rows pgx.Rows
	cols []string
}

func newPgxCursor(rows pgx.Rows) *pgxCursor {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return &pgxCursor{rows: rows, cols: cols}
}

func (c *pgxCursor) Columns() []string {
	return c.cols
}

func (c *pgxCursor) Next() ([]any, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, classify(err, syncerr.ErrSourceUnavailable)
		}
		return nil, io.EOF
	}
	vals, err := c.rows.Values()
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (c *pgxCursor) Close() error {
	c.rows.Close()
	return nil
}

func columnList(e *driver.Entity) string {
	if len(e.Columns) == 0 {
		return "*"
	}
	return strings.Join(QuoteAll(e.Columns), ", ")
}

func orderClause(e *driver.Entity) string {
	if e.WatermarkColumn == "" {
		return ""
	}
	cols := []string{QuoteIdentifier(e.WatermarkColumn)}
	cols = append(cols, QuoteAll(e.PrimaryKey)...)
	return " ORDER BY " + strings.Join(cols, ", ")
}
