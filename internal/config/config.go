// Package config handles the XDG configuration directory, the settings file
// and the logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	// AppName is the application directory name.
	AppName = "solidtodo"

	// SettingsFile holds user settings in TOML.
	SettingsFile = "config.toml"

	// EnvFile holds optional SOLIDTODO_* overrides.
	EnvFile = ".env"

	// SessionFile is the stored OIDC session.
	SessionFile = "session.json"

	// GoogleClientFile is the Google OAuth client credentials filename.
	GoogleClientFile = "google_client.json"

	// GoogleTokenFile is the stored Google OAuth token filename.
	GoogleTokenFile = "google_token.json"

	envPrefix = "SOLIDTODO_"
)

// Defaults for Settings.
const (
	DefaultIssuer       = "https://login.inrupt.net"
	DefaultClientName   = "Solid To-Do"
	DefaultRedirectPort = 8085
	DefaultLogLevel     = "warn"
)

// Settings are the user-editable options from config.toml.
type Settings struct {
	Issuer       string   `toml:"issuer"`
	ClientName   string   `toml:"client_name"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`

	// RedirectPort is the first loopback port tried for the login
	// callback. Zero lets the system pick one.
	RedirectPort int `toml:"redirect_port"`

	LogLevel string `toml:"log_level"`
}

// DefaultSettings returns the settings used when config.toml is absent.
func DefaultSettings() Settings {
	return Settings{
		Issuer:       DefaultIssuer,
		ClientName:   DefaultClientName,
		RedirectPort: DefaultRedirectPort,
		LogLevel:     DefaultLogLevel,
	}
}

// RedirectURL returns the loopback callback URL for the configured port.
// Login binds the first free port from there on and registers that one.
func (s Settings) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", s.RedirectPort)
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	Settings Settings

	// Log is the process logger, set by the dispatcher.
	Log *log.Logger
}

// New creates a Config for configDir, or the default directory when empty,
// and loads its settings.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir, Settings: DefaultSettings()}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// load applies config.toml, then .env, then the process environment.
func (c *Config) load() error {
	path := c.SettingsPath()
	if _, err := toml.DecodeFile(path, &c.Settings); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	env, err := godotenv.Read(c.EnvPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", c.EnvPath(), err)
	}
	if env == nil {
		env = make(map[string]string)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, envPrefix) {
			env[k] = v
		}
	}
	if err := c.Settings.apply(env); err != nil {
		return err
	}
	return c.Settings.validate()
}

func (s *Settings) validate() error {
	if s.RedirectPort < 0 || s.RedirectPort > 65535 {
		return fmt.Errorf("invalid redirect_port: %d", s.RedirectPort)
	}
	return nil
}

func (s *Settings) apply(env map[string]string) error {
	for key, value := range env {
		name, ok := strings.CutPrefix(key, envPrefix)
		if !ok {
			continue
		}
		switch name {
		case "ISSUER":
			s.Issuer = value
		case "CLIENT_NAME":
			s.ClientName = value
		case "CLIENT_ID":
			s.ClientID = value
		case "CLIENT_SECRET":
			s.ClientSecret = value
		case "SCOPES":
			s.Scopes = strings.Fields(value)
		case "REDIRECT_PORT":
			port, err := strconv.Atoi(value)
			if err != nil || port < 0 || port > 65535 {
				return fmt.Errorf("invalid %s: %q", key, value)
			}
			s.RedirectPort = port
		case "LOG_LEVEL":
			s.LogLevel = value
		}
	}
	return nil
}

// SettingsPath returns the path to config.toml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// EnvPath returns the path to the .env override file.
func (c *Config) EnvPath() string {
	return filepath.Join(c.Dir, EnvFile)
}

// SessionPath returns the path to the stored OIDC session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// GoogleClientPath returns the path to the Google OAuth client credentials.
func (c *Config) GoogleClientPath() string {
	return filepath.Join(c.Dir, GoogleClientFile)
}

// GoogleTokenPath returns the path to the stored Google token.
func (c *Config) GoogleTokenPath() string {
	return filepath.Join(c.Dir, GoogleTokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasSession checks if a stored session exists.
func (c *Config) HasSession() bool {
	_, err := os.Stat(c.SessionPath())
	return err == nil
}

// HasGoogleClient checks if the Google client credentials file exists.
func (c *Config) HasGoogleClient() bool {
	_, err := os.Stat(c.GoogleClientPath())
	return err == nil
}

// NewLogger returns a logger writing to w. --debug wins over log_level; an
// unknown log_level falls back to warn.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	level := log.WarnLevel
	if c.Debug {
		level = log.DebugLevel
	} else if parsed, err := log.ParseLevel(c.Settings.LogLevel); err == nil {
		level = parsed
	}
	return log.NewWithOptions(w, log.Options{
		Level:  level,
		Prefix: AppName,
	})
}
