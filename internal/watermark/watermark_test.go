package watermark

import (
	"testing"
	"time"
)

func TestParseCanonicalizes(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		raw     string
		want    string
		wantErr bool
	}{
		{"integer plain", TypeInteger, "30", "30", false},
		{"integer padded", TypeInteger, "007", "7", false},
		{"integer junk", TypeInteger, "abc", "", true},
		{"timestamp rfc3339", TypeTimestamp, "2019-11-14T10:00:00Z", "2019-11-14T10:00:00Z", false},
		{"timestamp sql style", TypeTimestamp, "2019-11-14 10:00:00", "2019-11-14T10:00:00Z", false},
		{"timestamp date only", TypeTimestamp, "2019-11-14", "2019-11-14T00:00:00Z", false},
		{"timestamp junk", TypeTimestamp, "not-a-time", "", true},
		{"empty is sentinel", TypeInteger, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.typ, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if v.Raw != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.raw, v.Raw, tt.want)
			}
		})
	}
}

func TestFromColumn(t *testing.T) {
	ts := time.Date(2019, 11, 14, 10, 30, 0, 0, time.UTC)

	v, err := FromColumn(TypeTimestamp, ts)
	if err != nil {
		t.Fatalf("FromColumn(time.Time): %v", err)
	}
	if v.Raw != "2019-11-14T10:30:00Z" {
		t.Errorf("got %q", v.Raw)
	}

	v, err = FromColumn(TypeInteger, int64(42))
	if err != nil {
		t.Fatalf("FromColumn(int64): %v", err)
	}
	if v.Raw != "42" {
		t.Errorf("got %q", v.Raw)
	}

	v, err = FromColumn(TypeInteger, []byte("99"))
	if err != nil {
		t.Fatalf("FromColumn([]byte): %v", err)
	}
	if v.Raw != "99" {
		t.Errorf("got %q", v.Raw)
	}

	if _, err := FromColumn(TypeInteger, nil); err == nil {
		t.Error("FromColumn(nil) should fail")
	}
	if _, err := FromColumn(TypeTimestamp, 3.14); err == nil {
		t.Error("FromColumn(float64) for timestamp should fail")
	}
}

func TestCompare(t *testing.T) {
	mustParse := func(typ Type, raw string) Value {
		v, err := Parse(typ, raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		return v
	}

	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"sentinel equals sentinel", Sentinel(TypeInteger), Sentinel(TypeInteger), 0},
		{"sentinel below value", Sentinel(TypeInteger), mustParse(TypeInteger, "0"), -1},
		{"value above sentinel", mustParse(TypeInteger, "-5"), Sentinel(TypeInteger), 1},
		{"integer less", mustParse(TypeInteger, "10"), mustParse(TypeInteger, "30"), -1},
		{"integer not lexicographic", mustParse(TypeInteger, "9"), mustParse(TypeInteger, "10"), -1},
		{"integer equal", mustParse(TypeInteger, "30"), mustParse(TypeInteger, "30"), 0},
		{"timestamp less", mustParse(TypeTimestamp, "2019-11-12"), mustParse(TypeTimestamp, "2019-11-14"), -1},
		{"timestamp equal across formats", mustParse(TypeTimestamp, "2019-11-14 00:00:00"), mustParse(TypeTimestamp, "2019-11-14"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Compare(tt.b)
			if err != nil {
				t.Fatalf("Compare: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if _, err := mustParse(TypeInteger, "1").Compare(mustParse(TypeTimestamp, "2019-11-14")); err == nil {
		t.Error("cross-type compare should fail")
	}
}

func TestArg(t *testing.T) {
	v, _ := Parse(TypeInteger, "30")
	arg, err := v.Arg()
	if err != nil {
		t.Fatalf("Arg: %v", err)
	}
	if arg.(int64) != 30 {
		t.Errorf("Arg = %v, want 30", arg)
	}

	v, _ = Parse(TypeTimestamp, "2019-11-14T10:00:00Z")
	arg, err = v.Arg()
	if err != nil {
		t.Fatalf("Arg: %v", err)
	}
	if !arg.(time.Time).Equal(time.Date(2019, 11, 14, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Arg = %v", arg)
	}

	// Sentinel binds to the minimum so "> sentinel" matches everything.
	arg, err = Sentinel(TypeTimestamp).Arg()
	if err != nil {
		t.Fatalf("Arg: %v", err)
	}
	if !arg.(time.Time).Before(time.Date(1971, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("sentinel timestamp arg should be at or before the epoch, got %v", arg)
	}
}

func TestParseType(t *testing.T) {
	if _, err := ParseType("timestamp"); err != nil {
		t.Errorf("timestamp: %v", err)
	}
	if _, err := ParseType("Integer"); err != nil {
		t.Errorf("Integer: %v", err)
	}
	if _, err := ParseType("uuid"); err == nil {
		t.Error("uuid should be rejected")
	}
}
