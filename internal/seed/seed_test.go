package seed

import (
	"strings"
	"testing"
)

func TestWriteDefaults(t *testing.T) {
	var sb strings.Builder
	if err := Write(&sb, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := sb.String()

	if !strings.HasPrefix(out, "-- 605 synthetic customer rows\n") {
		t.Errorf("missing header: %s", out[:40])
	}
	if !strings.Contains(out, "INSERT INTO customers (id, name, email, updated_at) VALUES") {
		t.Error("missing insert statement")
	}
	if !strings.Contains(out, "(605, ") {
		t.Error("last row missing")
	}
	if strings.Contains(out, "(606, ") {
		t.Error("generated too many rows")
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	var a, b strings.Builder
	opts := Options{Rows: 42, Table: "people"}
	if err := Write(&a, opts); err != nil {
		t.Fatal(err)
	}
	if err := Write(&b, opts); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("output differs between runs")
	}
	if !strings.Contains(a.String(), "INSERT INTO people ") {
		t.Error("table override ignored")
	}
}

func TestEmailsAreUnique(t *testing.T) {
	var sb strings.Builder
	if err := Write(&sb, Options{Rows: 200}); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(sb.String(), "\n") {
		i := strings.Index(line, "@example.com")
		if i < 0 {
			continue
		}
		start := strings.LastIndex(line[:i], "'")
		addr := line[start+1 : i]
		if seen[addr] {
			t.Fatalf("duplicate email %s", addr)
		}
		seen[addr] = true
	}
	if len(seen) != 200 {
		t.Errorf("found %d emails, want 200", len(seen))
	}
}
