// Package dbconfig provides database connection configuration shared by
// the config and driver packages. It exists to break the circular import
// between those two packages.
package dbconfig

// ConnConfig holds the connection settings for one database endpoint.
// The same shape serves both the source (read) and target (write) side.
type ConnConfig struct {
	Type            string `yaml:"type"` // "mysql", "postgres" or "mssql"
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Schema          string `yaml:"schema"`            // optional; used by postgres and mssql
	SSLMode         string `yaml:"ssl_mode"`          // postgres: disable, require, verify-ca, verify-full
	TrustServerCert bool   `yaml:"trust_server_cert"` // mssql: trust server certificate
	Charset         string `yaml:"charset"`           // mysql: connection charset (default utf8mb4)
}

// DSNOptions returns driver-specific options for building a DSN.
func (c *ConnConfig) DSNOptions() map[string]any {
	opts := make(map[string]any)
	if c.SSLMode != "" {
		opts["ssl_mode"] = c.SSLMode
	}
	if c.TrustServerCert {
		opts["trustServerCertificate"] = true
	}
	if c.Charset != "" {
		opts["charset"] = c.Charset
	}
	return opts
}
