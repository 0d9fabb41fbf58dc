package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for cloudsync.
type Config struct {
	// Server base URL of the cloud file service (required).
	ServerURL string `env:"CLOUDSYNC_SERVER_URL"`

	// Account name this client syncs for (required). Records in the local
	// store are scoped by this owner.
	AccountName string `env:"CLOUDSYNC_ACCOUNT"`

	// Bearer token used on every remote call (required). Obtaining and
	// refreshing it is the account manager's job, not this client's.
	AuthToken string `env:"CLOUDSYNC_AUTH_TOKEN"`

	// Directory holding cached file bytes. Defaults to
	// ~/.cloudsync/cache/<account>/ when empty.
	CacheDir string `env:"CLOUDSYNC_CACHE_DIR"`

	// Path of the local metadata database. Defaults to
	// ~/.cloudsync/files.db when empty.
	DBPath string `env:"CLOUDSYNC_DB_PATH"`

	// Interval between periodic root refreshes.
	RefreshInterval time.Duration `env:"CLOUDSYNC_REFRESH_INTERVAL" envDefault:"5m"`

	// Subscribe to the server change feed and refresh affected folders.
	EnableChangeFeed bool `env:"CLOUDSYNC_CHANGE_FEED" envDefault:"true"`

	// Watch the cache directory for local edits.
	WatchCache bool `env:"CLOUDSYNC_WATCH_CACHE" envDefault:"true"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Directory for rotating log files. Empty disables file logging.
	LogDir string `env:"CLOUDSYNC_LOG_DIR"`
}

// minRefreshInterval is the floor for the periodic refresh. Anything
// shorter hammers the server with PROPFIND-sized listings for no gain.
const minRefreshInterval = 10 * time.Second

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the auth token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.CacheDir == "" {
		dir, err := DefaultCacheDir(cfg.AccountName)
		if err != nil {
			return nil, err
		}

		cfg.CacheDir = dir
	}

	if cfg.DBPath == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, err
		}

		cfg.DBPath = path
	}

	// Resolve CacheDir to an absolute path at startup. The storage
	// provider's traversal checks rely on string prefix comparison, which
	// only works reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache dir to absolute path: %w", err)
	}

	cfg.CacheDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CLOUDSYNC_SERVER_URL is required")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CLOUDSYNC_SERVER_URL must be an absolute URL, got %q", c.ServerURL)
	}

	if c.AccountName == "" {
		return fmt.Errorf("CLOUDSYNC_ACCOUNT is required")
	}

	if c.AuthToken == "" {
		return fmt.Errorf("CLOUDSYNC_AUTH_TOKEN is required")
	}

	if c.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("CLOUDSYNC_REFRESH_INTERVAL must be at least %s", minRefreshInterval)
	}

	return nil
}

// DefaultCacheDir returns the default cache directory for an account:
// ~/.cloudsync/cache/<account>/
func DefaultCacheDir(account string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".cloudsync", "cache", account), nil
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".cloudsync", "files.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
