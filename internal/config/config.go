// Package config loads and validates the YAML configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mkrishnan-dev/datasync/internal/cascade"
	"github.com/mkrishnan-dev/datasync/internal/dbconfig"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/watermark"
)

// Environment variables that override config file credentials.
const (
	EnvSourcePassword = "DATASYNC_SOURCE_PASSWORD"
	EnvTargetPassword = "DATASYNC_TARGET_PASSWORD"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Source   dbconfig.ConnConfig `yaml:"source"`
	Target   dbconfig.ConnConfig `yaml:"target"`
	StateDB  string              `yaml:"state_db"`
	Sync     SyncConfig          `yaml:"sync"`
	Entities []EntityConfig      `yaml:"entities"`
	Cascade  []CascadeRule       `yaml:"cascade"`
	Fetch    FetchConfig         `yaml:"fetch"`
	CSV      CSVConfig           `yaml:"csv"`
}

// SyncConfig tunes cycle execution.
type SyncConfig struct {
	RowsPerBatch   int      `yaml:"rows_per_batch"`
	MaxConnections int      `yaml:"max_connections"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBackoff   Duration `yaml:"retry_backoff"`
}

// EntityConfig declares one synchronized table.
type EntityConfig struct {
	Name            string   `yaml:"name"`
	SourceTable     string   `yaml:"source_table"`
	TargetTable     string   `yaml:"target_table"`
	Columns         []string `yaml:"columns"`
	PrimaryKey      []string `yaml:"primary_key"`
	WatermarkColumn string   `yaml:"watermark_column"`
	WatermarkType   string   `yaml:"watermark_type"`
}

// CascadeRule declares one parent -> child trigger.
type CascadeRule struct {
	Parent  string `yaml:"parent"`
	Child   string `yaml:"child"`
	MinRows int64  `yaml:"min_rows"`
}

// FetchConfig configures the fetch-countries command.
type FetchConfig struct {
	Countries []string     `yaml:"countries"`
	OutputDir string       `yaml:"output_dir"`
	Upload    UploadConfig `yaml:"upload"`
}

// UploadConfig configures the optional S3-compatible upload of fetched
// files.
type UploadConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// CSVConfig configures the load-csv command.
type CSVConfig struct {
	Dir   string    `yaml:"dir"`
	Files []CSVFile `yaml:"files"`
}

// CSVFile maps one CSV file to its destination table.
type CSVFile struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
}

// Duration wraps time.Duration with YAML unmarshalling from strings like
// "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads, defaults and validates the configuration file. A .env file
// next to the working directory is loaded first, best-effort, then
// DATASYNC_* environment variables override file credentials.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Debug("No .env file loaded: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("reading config file: %w", err))
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("parsing config file: %w", err))
	}

	if pw := os.Getenv(EnvSourcePassword); pw != "" {
		cfg.Source.Password = pw
	}
	if pw := os.Getenv(EnvTargetPassword); pw != "" {
		cfg.Target.Password = pw
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	for _, conn := range []*dbconfig.ConnConfig{&c.Source, &c.Target} {
		if conn.Type == "" {
			continue // validate reports it
		}
		d, err := driver.Get(conn.Type)
		if err != nil {
			return syncerr.Wrap(syncerr.ErrConfiguration, err)
		}
		if conn.Port == 0 {
			conn.Port = d.DefaultPort()
		}
	}

	if c.StateDB == "" {
		c.StateDB = "datasync_state.db"
	}
	if c.Sync.RowsPerBatch <= 0 {
		c.Sync.RowsPerBatch = driver.DefaultRowsPerBatch
	}
	if c.Sync.MaxConnections <= 0 {
		c.Sync.MaxConnections = 4
	}
	if c.Sync.RetryBackoff <= 0 {
		c.Sync.RetryBackoff = Duration(2 * time.Second)
	}
	if c.Fetch.OutputDir == "" {
		c.Fetch.OutputDir = "countries"
	}
	if c.CSV.Dir == "" {
		c.CSV.Dir = "csv"
	}
	return nil
}

func (c *Config) validate() error {
	for side, conn := range map[string]*dbconfig.ConnConfig{"source": &c.Source, "target": &c.Target} {
		if conn.Type == "" {
			return configErrf("%s: database type is required", side)
		}
		if _, err := driver.Get(conn.Type); err != nil {
			return syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("%s: %w", side, err))
		}
		if conn.Host == "" {
			return configErrf("%s: host is required", side)
		}
		if conn.Database == "" {
			return configErrf("%s: database name is required", side)
		}
		if conn.User == "" {
			return configErrf("%s: user is required", side)
		}
	}

	if len(c.Entities) == 0 {
		return configErrf("at least one entity is required")
	}
	seen := make(map[string]bool, len(c.Entities))
	for i := range c.Entities {
		ec := &c.Entities[i]
		if ec.Name == "" {
			return configErrf("entity %d: name is required", i)
		}
		if seen[ec.Name] {
			return configErrf("duplicate entity name %q", ec.Name)
		}
		seen[ec.Name] = true

		ent, err := ec.Entity()
		if err != nil {
			return err
		}
		if err := ent.Validate(); err != nil {
			return syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("entity %s: %w", ec.Name, err))
		}
	}

	for _, r := range c.Cascade {
		if !seen[r.Parent] {
			return configErrf("cascade rule references unknown parent entity %q", r.Parent)
		}
		if !seen[r.Child] {
			return configErrf("cascade rule references unknown child entity %q", r.Child)
		}
		if r.MinRows < 0 {
			return configErrf("cascade rule %s -> %s: min_rows must not be negative", r.Parent, r.Child)
		}
	}

	for _, f := range c.CSV.Files {
		if f.Name == "" || f.Table == "" {
			return configErrf("csv file entries need both name and table")
		}
	}
	return nil
}

// Entity converts the declaration to the driver representation.
func (ec *EntityConfig) Entity() (*driver.Entity, error) {
	ent := &driver.Entity{
		Name:            ec.Name,
		SourceTable:     ec.SourceTable,
		TargetTable:     ec.TargetTable,
		Columns:         ec.Columns,
		PrimaryKey:      ec.PrimaryKey,
		WatermarkColumn: ec.WatermarkColumn,
	}
	if ec.WatermarkType != "" {
		typ, err := watermark.ParseType(ec.WatermarkType)
		if err != nil {
			return nil, syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf("entity %s: %w", ec.Name, err))
		}
		ent.WatermarkType = typ
	}
	return ent, nil
}

// DriverEntities converts all declarations.
func (c *Config) DriverEntities() ([]*driver.Entity, error) {
	ents := make([]*driver.Entity, 0, len(c.Entities))
	for i := range c.Entities {
		ent, err := c.Entities[i].Entity()
		if err != nil {
			return nil, err
		}
		ents = append(ents, ent)
	}
	return ents, nil
}

// Entity returns the named entity declaration converted, or a
// configuration error.
func (c *Config) Entity(name string) (*driver.Entity, error) {
	for i := range c.Entities {
		if c.Entities[i].Name == name {
			return c.Entities[i].Entity()
		}
	}
	return nil, configErrf("unknown entity %q", name)
}

// CascadeRules converts the declared rules for the cascade controller.
func (c *Config) CascadeRules() []cascade.Rule {
	rules := make([]cascade.Rule, 0, len(c.Cascade))
	for _, r := range c.Cascade {
		rules = append(rules, cascade.Rule{Parent: r.Parent, Child: r.Child, MinRows: r.MinRows})
	}
	return rules
}

// RetryPolicy returns the configured cascade retry policy.
func (c *Config) RetryPolicy() cascade.RetryPolicy {
	return cascade.RetryPolicy{
		MaxRetries: c.Sync.MaxRetries,
		Backoff:    time.Duration(c.Sync.RetryBackoff),
	}
}

func configErrf(format string, args ...any) error {
	return syncerr.Wrap(syncerr.ErrConfiguration, fmt.Errorf(format, args...))
}
