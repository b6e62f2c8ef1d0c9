// Package config loads server configuration.
//
// Values are layered, later layers overriding earlier ones: built-in
// defaults, an optional YAML file, then PROVENANCE_* environment variables
// (which a .env file may supply). Command-line flags are applied on top by
// the binary.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PROVENANCE_"

// Config is the server configuration.
type Config struct {
	// Database is the SQLite database path.
	Database string `yaml:"database"`

	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Log is an optional file that receives a copy of all log output.
	Log string `yaml:"log"`

	// LogLevel is the minimum level logged: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	Admin     AdminConfig     `yaml:"admin"`
	Codes     CodesConfig     `yaml:"codes"`
	Redirects RedirectsConfig `yaml:"redirects"`
}

// AdminConfig is the account created when a new database is initialized.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

// CodesConfig sets the prefixes of generated codes.
type CodesConfig struct {
	ScanPrefix     string `yaml:"scan_prefix"`
	TransferPrefix string `yaml:"transfer_prefix"`
}

// RedirectsConfig sets where the QR redirect endpoint sends browsers.
type RedirectsConfig struct {
	// Artwork is the artwork page; "{id}" is replaced with the artwork ID.
	Artwork string `yaml:"artwork"`
	// Register is the page for codes that resolve to no artwork.
	Register string `yaml:"register"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: "provenance.sqlite3",
		Addr:     ":8080",
		LogLevel: "info",
		Admin: AdminConfig{
			Username: "Admin",
			Email:    "admin@localhost",
		},
		Codes: CodesConfig{
			ScanPrefix:     codes.DefaultScanPrefix,
			TransferPrefix: codes.DefaultTransferPrefix,
		},
		Redirects: RedirectsConfig{
			Artwork:  "/artwork/{id}",
			Register: "/register",
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (or at
// $PROVENANCE_CONFIG when path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are left alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto c. Keys that do not map to a
// field are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PROVENANCE_* variables found by lookup onto c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	vars := map[string]*string{
		"DATABASE":          &c.Database,
		"ADDR":              &c.Addr,
		"LOG":               &c.Log,
		"LOG_LEVEL":         &c.LogLevel,
		"ADMIN_USERNAME":    &c.Admin.Username,
		"ADMIN_EMAIL":       &c.Admin.Email,
		"SCAN_PREFIX":       &c.Codes.ScanPrefix,
		"TRANSFER_PREFIX":   &c.Codes.TransferPrefix,
		"ARTWORK_REDIRECT":  &c.Redirects.Artwork,
		"REGISTER_REDIRECT": &c.Redirects.Register,
	}
	for name, field := range vars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = strings.TrimSpace(v)
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Admin.Username == "" {
		errs = append(errs, errors.New("admin username is required"))
	}
	if _, err := mail.ParseAddress(c.Admin.Email); err != nil {
		errs = append(errs, fmt.Errorf("admin email %q is invalid", c.Admin.Email))
	}
	if !codes.ValidPrefix(c.Codes.ScanPrefix) {
		errs = append(errs, fmt.Errorf("scan prefix %q must be 1-8 uppercase letters or digits", c.Codes.ScanPrefix))
	}
	if !codes.ValidPrefix(c.Codes.TransferPrefix) {
		errs = append(errs, fmt.Errorf("transfer prefix %q must be 1-8 uppercase letters or digits", c.Codes.TransferPrefix))
	}
	if c.Redirects.Artwork == "" || c.Redirects.Register == "" {
		errs = append(errs, errors.New("redirect targets are required"))
	}
	return errors.Join(errs...)
}
