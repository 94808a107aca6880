// Package seed generates synthetic customer data for exercising the sync
// pipelines.
package seed

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultRows is the number of rows generated when none is specified.
const DefaultRows = 605

var (
	firstNames = []string{
		"Alice", "Bob", "Carla", "Derek", "Elena", "Farid", "Grace", "Hugo",
		"Ingrid", "Jonas", "Kavya", "Liam", "Mona", "Niels", "Olga", "Pedro",
		"Quinn", "Rosa", "Stefan", "Tara",
	}
	lastNames = []string{
		"Andersen", "Berg", "Costa", "Dahl", "Eriksen", "Fischer", "Garcia",
		"Hansen", "Ivanov", "Jensen", "Kumar", "Larsen", "Moreno", "Nilsen",
		"Olsen", "Petrov", "Quintana", "Ruiz", "Schmidt", "Tanaka",
	}
)

// Options control script generation.
type Options struct {
	Rows  int    // row count; DefaultRows when <= 0
	Table string // destination table; "customers" when empty
}

// Write emits a SQL script inserting synthetic customer rows. Generation
// is deterministic: the same options always produce the same script.
func Write(w io.Writer, opts Options) error {
	rows := opts.Rows
	if rows <= 0 {
		rows = DefaultRows
	}
	table := opts.Table
	if table == "" {
		table = "customers"
	}

	if _, err := fmt.Fprintf(w, "-- %d synthetic customer rows\n", rows); err != nil {
		return err
	}

	const batch = 100
	for start := 1; start <= rows; start += batch {
		end := min(start+batch-1, rows)

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (id, name, email, updated_at) VALUES\n", table)
		for id := start; id <= end; id++ {
			name := customerName(id)
			if id > start {
				sb.WriteString(",\n")
			}
			fmt.Fprintf(&sb, "  (%d, '%s', '%s', NOW())", id, name, email(name, id))
		}
		sb.WriteString(";\n")

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the script to path.
func WriteFile(path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func customerName(id int) string {
	return firstNames[id%len(firstNames)] + " " + lastNames[(id/len(firstNames))%len(lastNames)]
}

func email(name string, id int) string {
	s := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	return fmt.Sprintf("%s.%d@example.com", s, id)
}
