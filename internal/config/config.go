package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDatabasePath = "database.sqlite"
	DefaultExportRoot   = "export"
	DefaultOutputPath   = "migrated_data.sql"
)

// TablesConfig adjusts how source directories map onto destination tables.
type TablesConfig struct {
	// Overrides maps a source directory name to a destination table name,
	// e.g. the plural "events" directory feeding the singular "event" table.
	Overrides map[string]string `yaml:"overrides"`
	// Chronological maps a table name to the document field its rows are
	// sorted by before emission, e.g. event -> created.
	Chronological map[string]string `yaml:"chronological"`
}

type Config struct {
	DatabasePath string       `yaml:"database"`
	ExportRoot   string       `yaml:"export"`
	OutputPath   string       `yaml:"output"`
	Tables       TablesConfig `yaml:"tables"`
}

// Default returns the conventional local setup: a database.sqlite next to
// an export/ tree, writing migrated_data.sql.
func Default() *Config {
	cfg := &Config{
		DatabasePath: DefaultDatabasePath,
		ExportRoot:   DefaultExportRoot,
		OutputPath:   DefaultOutputPath,
	}
	cfg.normalize()
	return cfg
}

// LoadConfig reads a YAML config file and applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.normalize()
	return &config, nil
}

// normalize trims paths, fills defaults, and layers in environment
// variables. A .env file in the working directory is honored when present.
func (c *Config) normalize() {
	_ = godotenv.Load()

	c.DatabasePath = firstNonEmpty(os.Getenv("KVMIGRATE_DATABASE"), strings.TrimSpace(c.DatabasePath), DefaultDatabasePath)
	c.ExportRoot = firstNonEmpty(os.Getenv("KVMIGRATE_EXPORT"), strings.TrimSpace(c.ExportRoot), DefaultExportRoot)
	c.OutputPath = firstNonEmpty(os.Getenv("KVMIGRATE_OUTPUT"), strings.TrimSpace(c.OutputPath), DefaultOutputPath)

	if c.Tables.Overrides == nil {
		c.Tables.Overrides = map[string]string{"events": "event"}
	}
	if c.Tables.Chronological == nil {
		c.Tables.Chronological = map[string]string{"event": "created"}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
