// Package logging provides leveled logging with text and JSON output formats.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// ParseLevel parses a level name (case-insensitive). "warning" is accepted
// as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

var (
	mu     sync.Mutex
	level  = LevelInfo
	format = "text"
	out    io.Writer = os.Stderr
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetFormat sets the output format: "text" or "json".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = f
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		out = os.Stderr
		return
	}
	out = w
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	mu.Lock()
	defer mu.Unlock()
	return level <= LevelDebug
}

func logf(l Level, msgFormat string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	msg := fmt.Sprintf(msgFormat, args...)
	now := time.Now()

	if format == "json" {
		entry := map[string]string{
			"ts":    now.Format(time.RFC3339Nano),
			"level": l.String(),
			"msg":   msg,
		}
		b, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(b))
		return
	}

	fmt.Fprintf(out, "%s [%s] %s\n", now.Format("2006-01-02 15:04:05"), strings.ToUpper(l.String()), msg)
}

// Debug logs at debug level.
func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }

// Info logs at info level.
func Info(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...any) { logf(LevelWarn, format, args...) }

// Error logs at error level.
func Error(format string, args ...any) { logf(LevelError, format, args...) }
