package postgres

import (
	"fmt"
	"net/url"
	"strings"
)

// QuoteIdentifier quotes a PostgreSQL identifier with double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteAll quotes a list of identifiers.
func QuoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdentifier(n)
	}
	return out
}

// QualifyTable prefixes the table with its schema when set.
func QualifyTable(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// BuildDSN builds a PostgreSQL connection URL.
func BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	params := url.Values{}
	if sslMode, ok := opts["ssl_mode"].(string); ok && sslMode != "" {
		params.Set("sslmode", sslMode)
	} else {
		params.Set("sslmode", "require")
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, database, params.Encode())
}
