package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagetree/internal/export"
	"github.com/starford/pagetree/internal/partition"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// AppName names the per-user configuration directory.
const AppName = "pagetree"

// UserConfigFile returns the per-user config file under the XDG config home.
// It is consulted when no --config flag is given and the working directory
// has no config file.
func UserConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// defaultIndexFile is the index location used by serve and mcp when
// sqlite.path is empty.
const defaultIndexFile = ".pagetree.db"

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Export ExportConfig      `yaml:"export"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// IndexPath returns the SQLite index location. The export command only uses
// an index when one is configured; serve and mcp fall back to a file inside
// the output directory.
func (c *Config) IndexPath(required bool) string {
	if c.SQLite.Path != "" || !required {
		return c.SQLite.Path
	}
	return filepath.Join(c.Export.OutputDir, defaultIndexFile)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ExportConfig describes the input document and how it is partitioned.
type ExportConfig struct {
	Input       string `yaml:"input"`
	OutputDir   string `yaml:"output_dir"`
	BaseURL     string `yaml:"base_url"`
	MaxDepth    int    `yaml:"max_depth"`
	MaxNodes    int    `yaml:"max_nodes"`
	Workers     int    `yaml:"workers"`
	OnDuplicate string `yaml:"on_duplicate"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if c.OnDuplicate == "" {
		c.OnDuplicate = string(partition.DuplicateError)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Input, validation.Required),
		validation.Field(&c.OutputDir, validation.Required),
		validation.Field(&c.BaseURL, validation.By(absoluteURL)),
		validation.Field(&c.MaxDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxNodes, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.OnDuplicate, validation.In(
			string(partition.DuplicateError),
			string(partition.DuplicateMerge),
			string(partition.DuplicateRename),
		)),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// Warnings reports settings that are valid but likely unintended.
func (c *ExportConfig) Warnings() []string {
	var out []string
	if c.BaseURL == "" {
		out = append(out, "export.base_url is empty: relative page locators are written as-is instead of absolute URLs")
	}
	return out
}

// Options converts the configuration into exporter options.
func (c *ExportConfig) Options(dryRun bool) export.Options {
	return export.Options{
		Partition: partition.Options{
			BaseURL: c.BaseURL,
			Limits: partition.Limits{
				MaxDepth: c.MaxDepth,
				MaxNodes: c.MaxNodes,
			},
			OnDuplicate: partition.DuplicatePolicy(c.OnDuplicate),
		},
		Workers: c.Workers,
		DryRun:  dryRun,
	}
}

// SQLiteConfig holds SQLite database configuration. An empty path disables
// the export index for the export command.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Export: ExportConfig{
			Input:       "articles.json",
			OutputDir:   "./csv",
			MaxDepth:    256,
			MaxNodes:    1_000_000,
			Workers:     1,
			OnDuplicate: string(partition.DuplicateError),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
