package mysql

import (
	"errors"
	"strings"
	"testing"

	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
)

func TestUpsertSuffix(t *testing.T) {
	e := &driver.Entity{
		Name:        "customers",
		SourceTable: "customers",
		PrimaryKey:  []string{"id"},
	}

	suffix := upsertSuffix(e, []string{"id", "name", "email"})
	want := " ON DUPLICATE KEY UPDATE `name` = VALUES(`name`), `email` = VALUES(`email`)"
	if suffix != want {
		t.Errorf("upsertSuffix = %q, want %q", suffix, want)
	}
}

func TestUpsertSuffixKeyOnlyTable(t *testing.T) {
	e := &driver.Entity{
		Name:        "tags",
		SourceTable: "tags",
		PrimaryKey:  []string{"id"},
	}

	suffix := upsertSuffix(e, []string{"id"})
	if !strings.Contains(suffix, "`id` = `id`") {
		t.Errorf("key-only upsert should self-assign: %q", suffix)
	}
}

func TestCheckKeyColumns(t *testing.T) {
	e := &driver.Entity{
		Name:       "customers",
		PrimaryKey: []string{"id"},
	}

	if err := checkKeyColumns(e, []string{"id", "name"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := checkKeyColumns(e, []string{"name", "email"})
	if !errors.Is(err, syncerr.ErrSchemaMismatch) {
		t.Errorf("missing key column should be a schema mismatch, got %v", err)
	}
}

func TestStagingNameStaysShort(t *testing.T) {
	long := strings.Repeat("a", 120)
	name := stagingName(long, "stg")
	if len(name) > 64 {
		t.Errorf("staging name exceeds MySQL identifier limit: %d chars", len(name))
	}
	if name == stagingName(long, "old") {
		t.Error("staging and retirement names must differ")
	}
	if stagingName("customers", "stg") != stagingName("customers", "stg") {
		t.Error("staging name must be deterministic")
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("customers"); got != "`customers`" {
		t.Errorf("QuoteIdentifier = %q", got)
	}
	if got := QuoteIdentifier("we`ird"); got != "`we``ird`" {
		t.Errorf("QuoteIdentifier escapes backticks: %q", got)
	}
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN("localhost", 3306, "source_db", "root", "p@ss:word", map[string]any{})
	if !strings.HasPrefix(dsn, "root:p%40ss%3Aword@tcp(localhost:3306)/source_db?") {
		t.Errorf("credentials not URL-encoded: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("parseTime missing: %s", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Errorf("default charset missing: %s", dsn)
	}

	dsn = BuildDSN("db", 3306, "x", "u", "p", map[string]any{"ssl_mode": "disable"})
	if !strings.Contains(dsn, "tls=false") {
		t.Errorf("ssl_mode=disable should map to tls=false: %s", dsn)
	}
}
