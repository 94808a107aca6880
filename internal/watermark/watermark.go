// Package watermark defines the watermark value type: the highest value of
// a monotonically ordered column known to have been fully synchronized.
//
// Values are carried as canonical strings (RFC3339Nano for timestamps,
// decimal for integers) so the persisted store stays a plain keyed table,
// with type-aware parsing and comparison layered on top.
package watermark

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type identifies how a watermark column's values are ordered and compared.
type Type string

const (
	TypeTimestamp Type = "timestamp"
	TypeInteger   Type = "integer"
)

// ParseType validates a watermark type name from configuration.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(s)) {
	case TypeTimestamp:
		return TypeTimestamp, nil
	case TypeInteger:
		return TypeInteger, nil
	}
	return "", fmt.Errorf("unknown watermark type: %q", s)
}

// Value is a single watermark. The zero Raw string is the sentinel minimum,
// meaning "never synchronized".
type Value struct {
	Type Type
	Raw  string
}

// Sentinel returns the sentinel minimum value for the given type.
func Sentinel(t Type) Value {
	return Value{Type: t}
}

// IsSentinel reports whether the value is the sentinel minimum.
func (v Value) IsSentinel() bool {
	return v.Raw == ""
}

// String renders the value for display.
func (v Value) String() string {
	if v.IsSentinel() {
		return "(none)"
	}
	return v.Raw
}

// Parse validates a raw string against the type and returns a canonical Value.
func Parse(t Type, raw string) (Value, error) {
	if raw == "" {
		return Sentinel(t), nil
	}
	switch t {
	case TypeTimestamp:
		ts, err := parseTime(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parsing timestamp watermark %q: %w", raw, err)
		}
		return Value{Type: t, Raw: ts.UTC().Format(time.RFC3339Nano)}, nil
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing integer watermark %q: %w", raw, err)
		}
		return Value{Type: t, Raw: strconv.FormatInt(n, 10)}, nil
	}
	return Value{}, fmt.Errorf("unknown watermark type: %q", t)
}

// FromColumn converts a value scanned from a database column into a Value.
func FromColumn(t Type, x any) (Value, error) {
	if x == nil {
		return Value{}, fmt.Errorf("watermark column value is NULL")
	}
	switch t {
	case TypeTimestamp:
		switch v := x.(type) {
		case time.Time:
			return Value{Type: t, Raw: v.UTC().Format(time.RFC3339Nano)}, nil
		case string:
			return Parse(t, v)
		case []byte:
			return Parse(t, string(v))
		}
	case TypeInteger:
		switch v := x.(type) {
		case int64:
			return Value{Type: t, Raw: strconv.FormatInt(v, 10)}, nil
		case int32:
			return Value{Type: t, Raw: strconv.FormatInt(int64(v), 10)}, nil
		case int:
			return Value{Type: t, Raw: strconv.FormatInt(int64(v), 10)}, nil
		case string:
			return Parse(t, v)
		case []byte:
			return Parse(t, string(v))
		}
	}
	return Value{}, fmt.Errorf("cannot use %T as %s watermark", x, t)
}

// Arg returns the value as a query bind argument. The sentinel binds to the
// minimum representable value so a strictly-greater predicate matches all rows.
func (v Value) Arg() (any, error) {
	switch v.Type {
	case TypeTimestamp:
		if v.IsSentinel() {
			return time.Unix(0, 0).UTC(), nil
		}
		return parseTime(v.Raw)
	case TypeInteger:
		if v.IsSentinel() {
			return int64(math.MinInt64), nil
		}
		return strconv.ParseInt(v.Raw, 10, 64)
	}
	return nil, fmt.Errorf("unknown watermark type: %q", v.Type)
}

// Compare orders two values of the same type: -1, 0, or +1. The sentinel
// compares less than every non-sentinel value.
func (v Value) Compare(o Value) (int, error) {
	if v.Type != o.Type {
		return 0, fmt.Errorf("comparing %s watermark against %s", v.Type, o.Type)
	}
	switch {
	case v.IsSentinel() && o.IsSentinel():
		return 0, nil
	case v.IsSentinel():
		return -1, nil
	case o.IsSentinel():
		return 1, nil
	}

	switch v.Type {
	case TypeTimestamp:
		a, err := parseTime(v.Raw)
		if err != nil {
			return 0, err
		}
		b, err := parseTime(o.Raw)
		if err != nil {
			return 0, err
		}
		return a.Compare(b), nil
	case TypeInteger:
		a, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return 0, err
		}
		b, err := strconv.ParseInt(o.Raw, 10, 64)
		if err != nil {
			return 0, err
		}
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unknown watermark type: %q", v.Type)
}

// timeLayouts are accepted on input; output is always RFC3339Nano.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
