package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Reader implements driver.Reader for SQL Server.
type Reader struct {
	db     *sql.DB
	config *dbconfig.ConnConfig
}

// NewReader creates a new SQL Server reader.
func NewReader(cfg *dbconfig.ConnConfig, maxConns int) (*Reader, error) {
	dsn := BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("pinging database: %w", err), syncerr.ErrSourceUnavailable)
	}

	logging.Debug("Connected to SQL Server source: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Reader{db: db, config: cfg}, nil
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
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > @p1%s",
		columnList(e), QualifyTable(r.config.Schema, e.Source()), QuoteIdentifier(e.WatermarkColumn), orderClause(e))
	return r.query(ctx, query, arg)
}

func (r *Reader) query(ctx context.Context, query string, args ...any) (driver.Cursor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, syncerr.ErrSourceUnavailable)
	}
	cur, err := driver.NewSQLCursor(rows)
	if err != nil {
		return nil, classify(err, syncerr.ErrSourceUnavailable)
	}
	return cur, nil
}

// Ping verifies connectivity.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classify(err, syncerr.ErrSourceUnavailable)
	}
	return nil
}

// Close closes the connection pool.
func (r *Reader) Close() error {
	return r.db.Close()
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
