package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

// maxParams caps parameters per statement. SQL Server allows 2100; keep
// headroom below the hard limit.
const maxParams = 2000

// Writer implements driver.Writer for SQL Server.
type Writer struct {
	db           *sql.DB
	config       *dbconfig.ConnConfig
	rowsPerBatch int
}

// NewWriter creates a new SQL Server writer.
func NewWriter(cfg *dbconfig.ConnConfig, maxConns int, opts driver.WriterOptions) (*Writer, error) {
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
		return nil, classify(fmt.Errorf("pinging database: %w", err), syncerr.ErrDestinationUnavailable)
	}

	logging.Debug("Connected to SQL Server target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	rowsPerBatch := opts.RowsPerBatch
	if rowsPerBatch <= 0 {
		rowsPerBatch = driver.DefaultRowsPerBatch
	}

	return &Writer{db: db, config: cfg, rowsPerBatch: rowsPerBatch}, nil
}

// ReplaceAll deletes the target content and reloads it from the cursor, all
// inside one transaction so readers see either the old rows or the new.
func (w *Writer) ReplaceAll(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	target := QualifyTable(w.config.Schema, e.Target())

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+target); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}

	cols := cur.Columns()
	colList := strings.Join(QuoteAll(cols), ", ")
	batchSize := w.batchSize(len(cols))

	var total int64
	for {
		batch, err := driver.ReadBatch(cur, batchSize)
		if err != nil && err != io.EOF {
			return total, classify(err, syncerr.ErrSourceUnavailable)
		}
		done := err == io.EOF

		if len(batch) > 0 {
			values, args := valuesClause(batch, len(cols))
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", target, colList, values)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return total, classify(err, syncerr.ErrDestinationUnavailable)
			}
			total += int64(len(batch))
		}

		if done {
			break
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(err, syncerr.ErrDestinationUnavailable)
	}
	return total, nil
}

// Upsert applies rows with batched MERGE statements keyed on the primary
// key. Re-applying the same rows leaves the table unchanged.
func (w *Writer) Upsert(ctx context.Context, e *driver.Entity, cur driver.Cursor) (int64, error) {
	cols := cur.Columns()
	if err := checkKeyColumns(e, cols); err != nil {
		return 0, err
	}

	target := QualifyTable(w.config.Schema, e.Target())
	batchSize := w.batchSize(len(cols))

	var total int64
	for {
		batch, err := driver.ReadBatch(cur, batchSize)
		if err != nil && err != io.EOF {
			return total, classify(err, syncerr.ErrSourceUnavailable)
		}
		done := err == io.EOF

		if len(batch) > 0 {
			values, args := valuesClause(batch, len(cols))
			query := mergeStatement(target, e, cols, values)
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

// batchSize bounds rows per statement by both the configured batch size and
// the parameter limit.
func (w *Writer) batchSize(ncols int) int {
	size := w.rowsPerBatch
	if ncols > 0 {
		if limit := maxParams / ncols; limit < size {
			size = limit
		}
	}
	return max(1, size)
}

// valuesClause builds a "(@p1, @p2), (@p3, @p4)" constructor and the flat
// argument list for batch.
func valuesClause(batch [][]any, ncols int) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(batch)*ncols)
	p := 1
	for i, row := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < ncols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "@p%d", p)
			p++
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}
	return sb.String(), args
}

// mergeStatement builds a MERGE over a VALUES constructor. A key-only table
// gets no WHEN MATCHED clause.
func mergeStatement(target string, e *driver.Entity, cols []string, values string) string {
	isPK := make(map[string]bool, len(e.PrimaryKey))
	for _, pk := range e.PrimaryKey {
		isPK[pk] = true
	}

	var onConds, sets, insertCols, insertVals []string
	for _, col := range cols {
		q := QuoteIdentifier(col)
		insertCols = append(insertCols, q)
		insertVals = append(insertVals, "src."+q)
		if isPK[col] {
			onConds = append(onConds, fmt.Sprintf("tgt.%s = src.%s", q, q))
		} else {
			sets = append(sets, fmt.Sprintf("tgt.%s = src.%s", q, q))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s AS tgt USING (VALUES %s) AS src (%s) ON %s",
		target, values, strings.Join(QuoteAll(cols), ", "), strings.Join(onConds, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&sb, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(insertCols, ", "), strings.Join(insertVals, ", "))
	return sb.String()
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
