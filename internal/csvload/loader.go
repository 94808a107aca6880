// Package csvload loads CSV files into destination tables, stamping each
// row with the date extracted from its file name.
package csvload

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/progress"
)

// DateColumn is appended to every loaded row, holding the YYYYMMDD date
// taken from the file name.
const DateColumn = "extracted_date"

var datePattern = regexp.MustCompile(`\d{8}`)

// FileSpec maps one CSV file to its destination table. When Columns is
// empty the CSV's header row names the columns.
type FileSpec struct {
	Name    string
	Table   string
	Columns []string
}

// Loader loads CSV files through a destination writer. Each file replaces
// its table's content atomically, the same path full loads take.
type Loader struct {
	writer driver.Writer
	quiet  bool
}

// New creates a Loader. quiet suppresses per-row progress output.
func New(writer driver.Writer, quiet bool) *Loader {
	return &Loader{writer: writer, quiet: quiet}
}

// LoadDir loads every specified file from dir. Returns total rows loaded;
// the first failing file stops the load.
func (l *Loader) LoadDir(ctx context.Context, dir string, files []FileSpec) (int64, error) {
	if len(files) == 0 {
		return 0, fmt.Errorf("no csv files configured")
	}

	var total int64
	for _, spec := range files {
		path := filepath.Join(dir, spec.Name)
		n, err := l.loadFile(ctx, path, spec)
		if err != nil {
			return total, fmt.Errorf("loading %s: %w", spec.Name, err)
		}
		logging.Info("Loaded %s: %d rows into %s", spec.Name, n, spec.Table)
		total += n
	}
	return total, nil
}

func (l *Loader) loadFile(ctx context.Context, path string, spec FileSpec) (int64, error) {
	date, err := ExtractDate(filepath.Base(path))
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("file is empty")
	}

	cols := spec.Columns
	body := records
	if len(cols) == 0 {
		cols = records[0]
		body = records[1:]
	}
	cols = append(append([]string{}, cols...), DateColumn)

	rows := make([][]any, 0, len(body))
	for i, rec := range body {
		if len(rec) != len(cols)-1 {
			return 0, fmt.Errorf("row %d has %d fields, expected %d", i+1, len(rec), len(cols)-1)
		}
		row := make([]any, 0, len(cols))
		for _, field := range rec {
			row = append(row, field)
		}
		row = append(row, date)
		rows = append(rows, row)
	}

	tracker := progress.New(l.quiet)
	defer tracker.Finish()

	ent := &driver.Entity{
		Name:        spec.Table,
		SourceTable: spec.Name,
		TargetTable: spec.Table,
	}
	n, err := l.writer.ReplaceAll(ctx, ent, newTrackedCursor(cols, rows, tracker))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ExtractDate pulls the first valid YYYYMMDD date out of a file name.
func ExtractDate(name string) (string, error) {
	for _, m := range datePattern.FindAllString(name, -1) {
		if _, err := time.Parse("20060102", m); err == nil {
			return m, nil
		}
	}
	return "", fmt.Errorf("no YYYYMMDD date in file name %q", name)
}

// trackedCursor feeds the progress tracker as rows are consumed.
type trackedCursor struct {
	*driver.SliceCursor
	tracker *progress.Tracker
}

func newTrackedCursor(cols []string, rows [][]any, tracker *progress.Tracker) *trackedCursor {
	return &trackedCursor{
		SliceCursor: driver.NewSliceCursor(cols, rows),
		tracker:     tracker,
	}
}

func (c *trackedCursor) Next() ([]any, error) {
	row, err := c.SliceCursor.Next()
	if err == nil {
		c.tracker.Add(1)
	}
	return row, err
}
