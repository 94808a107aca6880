package driver

import (
	"io"
	"strings"
	"testing"

	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

func TestEntityValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr string
	}{
		{
			name: "valid incremental",
			entity: Entity{
				Name:            "customers",
				SourceTable:     "customers",
				PrimaryKey:      []string{"id"},
				WatermarkColumn: "last_updated",
				WatermarkType:   watermark.TypeTimestamp,
			},
		},
		{
			name: "valid full-load only",
			entity: Entity{
				Name:        "products",
				SourceTable: "products",
			},
		},
		{
			name:    "missing name",
			entity:  Entity{SourceTable: "customers"},
			wantErr: "name is required",
		},
		{
			name:    "missing source table",
			entity:  Entity{Name: "customers"},
			wantErr: "source table is required",
		},
		{
			name: "watermark without primary key",
			entity: Entity{
				Name:            "customers",
				SourceTable:     "customers",
				WatermarkColumn: "last_updated",
				WatermarkType:   watermark.TypeTimestamp,
			},
			wantErr: "requires a primary key",
		},
		{
			name: "bad watermark type",
			entity: Entity{
				Name:            "customers",
				SourceTable:     "customers",
				PrimaryKey:      []string{"id"},
				WatermarkColumn: "last_updated",
				WatermarkType:   "uuid",
			},
			wantErr: "invalid watermark type",
		},
		{
			name: "injection in table name",
			entity: Entity{
				Name:        "customers",
				SourceTable: "customers; DROP TABLE users--",
			},
			wantErr: "invalid character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEntityTarget(t *testing.T) {
	e := Entity{SourceTable: "customers"}
	if e.Target() != "customers" {
		t.Errorf("Target() = %q, want fallback to source table", e.Target())
	}
	e.TargetTable = "customers_local"
	if e.Target() != "customers_local" {
		t.Errorf("Target() = %q", e.Target())
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"customers", "_stg_customers", "Order Details", "last_updated"}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q) unexpected error: %v", name, err)
		}
	}

	invalid := []string{"", "1table", "tab`le", "tab;le", "ta'ble", strings.Repeat("x", 129)}
	for _, name := range invalid {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q) expected error", name)
		}
	}
}

func TestSliceCursorAndReadBatch(t *testing.T) {
	cur := NewSliceCursor([]string{"id", "name"}, [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(3), "c"},
	})

	batch, err := ReadBatch(cur, 2)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}

	batch, err = ReadBatch(cur, 2)
	if err != io.EOF {
		t.Fatalf("ReadBatch at end: err = %v, want io.EOF", err)
	}
	if len(batch) != 1 {
		t.Fatalf("len(batch) = %d, want 1", len(batch))
	}

	batch, err = ReadBatch(cur, 2)
	if err != io.EOF || len(batch) != 0 {
		t.Fatalf("ReadBatch after end: batch=%v err=%v", batch, err)
	}
}
