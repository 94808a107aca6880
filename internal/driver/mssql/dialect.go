package mssql

import (
	"fmt"
	"net/url"
	"strings"
)

// QuoteIdentifier quotes a SQL Server identifier with brackets.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QuoteAll quotes a list of identifiers.
func QuoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdentifier(n)
	}
	return out
}

// QualifyTable prefixes the table with its schema, defaulting to dbo.
func QualifyTable(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// BuildDSN builds a sqlserver:// connection URL.
func BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	params := url.Values{}
	params.Set("database", database)
	if trust, ok := opts["trustServerCertificate"].(bool); ok && trust {
		params.Set("TrustServerCertificate", "true")
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: params.Encode(),
	}
	return u.String()
}
