// Package publish drives a complete publishing run: configuration
// from the environment, remote existence check, local repository
// maintenance, mirror import, package addition, and the signed upload.
package publish

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/aptpub/aptpub/internal/repo"
)

const (
	defaultCodename = "bionic"
	defaultMaxConns = 10
)

// Config carries everything a publishing run needs. All fields except
// Codename are required; Codename falls back to "bionic".
type Config struct {
	SigningKey        string
	SigningPassphrase string
	Region            string
	Bucket            string
	ACL               string
	Prefix            string
	AccessKeyID       string
	SecretAccessKey   string
	PackageDir        string
	Codename          string
}

// envFields maps each required environment variable to the Config
// field it fills.
var envFields = []struct {
	env   string
	field func(*Config) *string
}{
	{"APT_SIGNING_KEY", func(c *Config) *string { return &c.SigningKey }},
	{"APT_SIGNING_PASSPHRASE", func(c *Config) *string { return &c.SigningPassphrase }},
	{"APT_S3_REGION", func(c *Config) *string { return &c.Region }},
	{"APT_S3_BUCKET", func(c *Config) *string { return &c.Bucket }},
	{"APT_S3_ACL", func(c *Config) *string { return &c.ACL }},
	{"APT_S3_PREFIX", func(c *Config) *string { return &c.Prefix }},
	{"AWS_ACCESS_KEY_ID", func(c *Config) *string { return &c.AccessKeyID }},
	{"AWS_SECRET_ACCESS_KEY", func(c *Config) *string { return &c.SecretAccessKey }},
	{"APT_PACKAGE_DIR", func(c *Config) *string { return &c.PackageDir }},
}

// FromEnv reads the configuration from environment variables. It does
// not validate; call Check before acting on it.
func FromEnv() *Config {
	c := new(Config)
	for _, f := range envFields {
		*f.field(c) = os.Getenv(f.env)
	}
	c.Codename = os.Getenv("APT_CODENAME")
	if c.Codename == "" {
		c.Codename = defaultCodename
	}
	return c
}

// Check validates the configuration. All missing variables are
// reported at once so the caller can fix them in one pass.
func (c *Config) Check() error {
	var missing []string
	for _, f := range envFields {
		if *f.field(c) == "" {
			missing = append(missing, f.env)
		}
	}
	if len(missing) > 0 {
		return errors.Newf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if !repo.IsValidCodename(c.Codename) {
		return errors.Newf("invalid codename: %q", c.Codename)
	}
	if !filepath.IsAbs(c.PackageDir) {
		return errors.New("APT_PACKAGE_DIR must be an absolute path")
	}
	return nil
}

// LogConfig selects the level and format of the process-wide logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply installs a slog handler for the configured level and format as
// the default logger.
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Settings holds the ambient options read from the optional TOML
// configuration file. Everything here has a working default.
type Settings struct {
	StateDir  string    `toml:"state_dir"`
	Endpoints string    `toml:"endpoints"`
	MaxConns  int       `toml:"max_conns"`
	Log       LogConfig `toml:"log"`
}

// NewSettings creates Settings with default values. The state
// directory and endpoints file live under ~/.aptpub.
func NewSettings() (*Settings, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolving home directory")
	}
	base := filepath.Join(home, ".aptpub")
	return &Settings{
		StateDir:  base,
		Endpoints: filepath.Join(base, "endpoints.json"),
		MaxConns:  defaultMaxConns,
	}, nil
}

// LoadSettings reads the TOML file at path over the defaults. An empty
// path returns the defaults unchanged.
func LoadSettings(path string) (*Settings, error) {
	s, err := NewSettings()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}

	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown keys in configuration file", "path", path, "keys", undecoded)
	}

	// The endpoints file follows the state dir unless the file pins it
	// explicitly.
	if !md.IsDefined("endpoints") {
		s.Endpoints = filepath.Join(s.StateDir, "endpoints.json")
	}

	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Check validates the settings.
func (s *Settings) Check() error {
	if s.StateDir == "" {
		return errors.New("state_dir is not set")
	}
	if !filepath.IsAbs(s.StateDir) {
		return errors.New("state_dir must be an absolute path")
	}
	if s.MaxConns < 0 {
		return errors.New("max_conns must not be negative")
	}
	if s.MaxConns == 0 {
		s.MaxConns = defaultMaxConns
	}
	if s.Endpoints == "" {
		s.Endpoints = filepath.Join(s.StateDir, "endpoints.json")
	}
	return nil
}
