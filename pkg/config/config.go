// Package config loads the lilyenv configuration file.
//
// The file is TOML, read from $LILYENV_CONFIG or
// $XDG_CONFIG_HOME/lilyenv/config.toml (~/.config/lilyenv/config.toml when
// XDG_CONFIG_HOME is unset). A missing file yields [Default]. Every key is
// optional:
//
//	store_dir        = "~/pythons"
//	platform         = "x86_64-unknown-linux-gnu"
//	http_timeout     = "30s"
//	download_timeout = "10m"
//	lock_timeout     = "30s"
//	catalog_ttl      = "1h"
//	catalog_pages    = 1
//	retry_attempts   = 3
//	retry_delay      = "1s"
//
//	[github]
//	owner     = "astral-sh"
//	repo      = "python-build-standalone"
//	api_url   = "https://api.github.com"
//	token_env = "GITHUB_TOKEN"
//
//	[cache]
//	backend   = "file" # file, redis or none
//	redis_url = "redis://localhost:6379/0"
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

const appName = "lilyenv"

// Environment variables consulted by Load and StoreRoot.
const (
	EnvConfig = "LILYENV_CONFIG"
	EnvHome   = "LILYENV_HOME"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// MaxCatalogPages bounds catalog_pages.
const MaxCatalogPages = 10

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the decoded configuration file.
type Config struct {
	StoreDir        string   `toml:"store_dir"`
	Platform        string   `toml:"platform"`
	HTTPTimeout     Duration `toml:"http_timeout"`
	DownloadTimeout Duration `toml:"download_timeout"`
	LockTimeout     Duration `toml:"lock_timeout"`
	CatalogTTL      Duration `toml:"catalog_ttl"`
	CatalogPages    int      `toml:"catalog_pages"`
	RetryAttempts   int      `toml:"retry_attempts"`
	RetryDelay      Duration `toml:"retry_delay"`

	GitHub GitHub `toml:"github"`
	Cache  Cache  `toml:"cache"`

	// Path is the file the configuration was read from, empty for
	// defaults.
	Path string `toml:"-"`
}

// GitHub selects the release repository.
type GitHub struct {
	Owner    string `toml:"owner"`
	Repo     string `toml:"repo"`
	APIURL   string `toml:"api_url"`
	TokenEnv string `toml:"token_env"`
}

// Cache selects the catalog cache backend.
type Cache struct {
	Backend  string `toml:"backend"`
	RedisURL string `toml:"redis_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPTimeout:     Duration{30 * time.Second},
		DownloadTimeout: Duration{10 * time.Minute},
		LockTimeout:     Duration{30 * time.Second},
		CatalogTTL:      Duration{time.Hour},
		CatalogPages:    1,
		RetryAttempts:   3,
		RetryDelay:      Duration{time.Second},
		GitHub: GitHub{
			Owner:    "astral-sh",
			Repo:     "python-build-standalone",
			APIURL:   "https://api.github.com",
			TokenEnv: "GITHUB_TOKEN",
		},
		Cache: Cache{Backend: CacheFile},
	}
}

// Path returns the configuration file location.
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// Load reads the configuration from [Path].
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path over the defaults. A missing
// file is not an error; unknown keys and invalid values are INVALID_INPUT.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config")
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidInput, "config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	for name, d := range map[string]Duration{
		"http_timeout":     c.HTTPTimeout,
		"download_timeout": c.DownloadTimeout,
		"lock_timeout":     c.LockTimeout,
	} {
		if d.Duration <= 0 {
			return errors.New(errors.ErrCodeInvalidInput, "%s must be positive", name)
		}
	}
	if c.CatalogTTL.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "catalog_ttl must not be negative")
	}
	if c.CatalogPages < 1 || c.CatalogPages > MaxCatalogPages {
		return errors.New(errors.ErrCodeInvalidInput, "catalog_pages must be between 1 and %d", MaxCatalogPages)
	}
	if c.RetryAttempts < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retry_attempts must be at least 1")
	}
	if c.RetryDelay.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "retry_delay must not be negative")
	}
	if err := errors.ValidateURL(c.GitHub.APIURL); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidInput, "cache.redis_url is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// StoreRoot returns the store directory: $LILYENV_HOME, then store_dir,
// then $XDG_DATA_HOME/lilyenv, then ~/.local/share/lilyenv.
func (c *Config) StoreRoot() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return expandHome(dir)
	}
	if c.StoreDir != "" {
		return expandHome(c.StoreDir)
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "locate store directory")
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// Token returns the GitHub token from the configured environment variable.
func (c *Config) Token() string {
	if c.GitHub.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.GitHub.TokenEnv)
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "expand %s", path)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", path)
		}
		path = abs
	}
	return path, nil
}
