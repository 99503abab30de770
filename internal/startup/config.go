package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"media-cache/internal/logging"
	"media-cache/internal/mediatypes"
)

// DatabaseFile is the index file name inside DatabaseDir.
const DatabaseFile = "media-cache.db"

// Config holds all application configuration
type Config struct {
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	CachePrefix     string
	DecodeShrink    int
	CopyLocal       bool
	FetchTimeout    time.Duration
	FetchWorkers    int
	LogLevel        string
	LogStaticFiles  bool
	LogHealthChecks bool

	// LocalRoots are the directories whose files HTTP clients may name as
	// sources. Empty allows only URLs and embedded resources.
	LocalRoots []string

	// ReconcileInterval is how often the index is reconciled with the
	// cache root. Zero disables periodic runs.
	ReconcileInterval      time.Duration
	ReconcileVerify        bool
	ReconcileRemoveOrphans bool

	// ConfigFile is the TOML file that was applied, or "".
	ConfigFile string

	// Derived paths
	DatabasePath string
}

// FileConfig is the TOML layout of CONFIG_FILE. Environment variables win
// over anything set here.
type FileConfig struct {
	CacheDir    string           `toml:"cache_dir"`
	DatabaseDir string           `toml:"database_dir"`
	Server      ServerSection    `toml:"server"`
	Cache       CacheSection     `toml:"cache"`
	Fetch       FetchSection     `toml:"fetch"`
	Log         LogSection       `toml:"log"`
	Reconcile   ReconcileSection `toml:"reconcile"`
}

// ServerSection is the [server] table.
type ServerSection struct {
	Port           string   `toml:"port"`
	MetricsPort    string   `toml:"metrics_port"`
	MetricsEnabled *bool    `toml:"metrics_enabled"`
	LocalRoots     []string `toml:"local_roots"`
}

// CacheSection is the [cache] table.
type CacheSection struct {
	Prefix       string `toml:"prefix"`
	DecodeShrink int    `toml:"decode_shrink"`
	CopyLocal    *bool  `toml:"copy_local"`
}

// FetchSection is the [fetch] table.
type FetchSection struct {
	Timeout string `toml:"timeout"`
	Workers int    `toml:"workers"`
}

// LogSection is the [log] table.
type LogSection struct {
	Level        string `toml:"level"`
	StaticFiles  *bool  `toml:"static_files"`
	HealthChecks *bool  `toml:"health_checks"`
}

// ReconcileSection is the [reconcile] table.
type ReconcileSection struct {
	Interval      string `toml:"interval"`
	Verify        *bool  `toml:"verify"`
	RemoveOrphans *bool  `toml:"remove_orphans"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		CacheDir:        "/cache",
		DatabaseDir:     "/database",
		Port:            "8080",
		MetricsPort:     "9090",
		MetricsEnabled:  true,
		CachePrefix:     mediatypes.DefaultPrefix,
		DecodeShrink:    1,
		FetchTimeout:    30 * time.Second,
		LogLevel:        logging.GetLevel().String(),
		LogHealthChecks: true,

		ReconcileInterval: 6 * time.Hour,
	}
}

// LoadConfig loads and validates configuration: defaults, then CONFIG_FILE,
// then environment variables. It creates the cache and database
// directories and fails if either is not writable.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := resolveConfig(os.Getenv)
	if err != nil {
		return nil, err
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logging.SetLevel(level)
	} else {
		logging.Warn("  Invalid LOG_LEVEL %q, keeping %s", cfg.LogLevel, logging.GetLevel())
	}
	logConfig(cfg)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if cfg.CacheDir, err = filepath.Abs(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", cfg.CacheDir)

	if cfg.DatabaseDir, err = filepath.Abs(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, DatabaseFile)

	for i, root := range cfg.LocalRoots {
		if cfg.LocalRoots[i], err = filepath.Abs(root); err != nil {
			return nil, fmt.Errorf("failed to resolve local root %s: %w", root, err)
		}
		logging.Info("  Local root (absolute): %s", cfg.LocalRoots[i])
	}

	for _, dir := range []struct{ path, name string }{
		{cfg.CacheDir, "cache"},
		{cfg.DatabaseDir, "database"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	for _, name := range mediatypes.Folders {
		folder := filepath.Join(cfg.CacheDir, name)
		if err := os.MkdirAll(folder, 0o755); err != nil {
			logging.Warn("  Failed to create %s: %v (it will be retried on first write)", folder, err)
		}
	}

	return cfg, nil
}

// ReadConfig resolves configuration like LoadConfig but neither logs nor
// touches the filesystem.
func ReadConfig() (*Config, error) {
	cfg, err := resolveConfig(os.Getenv)
	if err != nil {
		return nil, err
	}
	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, DatabaseFile)
	return cfg, nil
}

// resolveConfig applies the config file and environment over the defaults.
func resolveConfig(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	env := envReader{getenv: getenv}
	cfg.CacheDir = env.str("CACHE_DIR", cfg.CacheDir)
	cfg.DatabaseDir = env.str("DATABASE_DIR", cfg.DatabaseDir)
	cfg.Port = env.str("PORT", cfg.Port)
	cfg.MetricsPort = env.str("METRICS_PORT", cfg.MetricsPort)
	cfg.MetricsEnabled = env.boolean("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.CachePrefix = env.str("CACHE_PREFIX", cfg.CachePrefix)
	cfg.DecodeShrink = env.positiveInt("DECODE_SHRINK", cfg.DecodeShrink)
	cfg.CopyLocal = env.boolean("COPY_LOCAL", cfg.CopyLocal)
	cfg.FetchTimeout = env.duration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchWorkers = env.positiveInt("FETCH_WORKERS", cfg.FetchWorkers)
	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogStaticFiles = env.boolean("LOG_STATIC_FILES", cfg.LogStaticFiles)
	cfg.LogHealthChecks = env.boolean("LOG_HEALTH_CHECKS", cfg.LogHealthChecks)
	cfg.LocalRoots = env.list("LOCAL_ROOTS", cfg.LocalRoots)
	cfg.ReconcileInterval = env.interval("RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.ReconcileVerify = env.boolean("RECONCILE_VERIFY", cfg.ReconcileVerify)
	cfg.ReconcileRemoveOrphans = env.boolean("RECONCILE_REMOVE_ORPHANS", cfg.ReconcileRemoveOrphans)

	return &cfg, nil
}

// applyFile overlays the TOML file at path onto cfg. Unset keys keep
// their current values.
func applyFile(cfg *Config, path string) error {
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&cfg.CacheDir, fc.CacheDir)
	setString(&cfg.DatabaseDir, fc.DatabaseDir)
	setString(&cfg.Port, fc.Server.Port)
	setString(&cfg.MetricsPort, fc.Server.MetricsPort)
	setBool(&cfg.MetricsEnabled, fc.Server.MetricsEnabled)
	if len(fc.Server.LocalRoots) > 0 {
		cfg.LocalRoots = fc.Server.LocalRoots
	}
	setString(&cfg.CachePrefix, fc.Cache.Prefix)
	if fc.Cache.DecodeShrink > 0 {
		cfg.DecodeShrink = fc.Cache.DecodeShrink
	}
	setBool(&cfg.CopyLocal, fc.Cache.CopyLocal)
	if fc.Fetch.Timeout != "" {
		d, err := time.ParseDuration(fc.Fetch.Timeout)
		if err != nil {
			return fmt.Errorf("config file %s: invalid fetch.timeout: %w", path, err)
		}
		cfg.FetchTimeout = d
	}
	if fc.Fetch.Workers > 0 {
		cfg.FetchWorkers = fc.Fetch.Workers
	}
	setString(&cfg.LogLevel, fc.Log.Level)
	setBool(&cfg.LogStaticFiles, fc.Log.StaticFiles)
	setBool(&cfg.LogHealthChecks, fc.Log.HealthChecks)
	if fc.Reconcile.Interval != "" {
		d, err := time.ParseDuration(fc.Reconcile.Interval)
		if err != nil || d < 0 {
			return fmt.Errorf("config file %s: invalid reconcile.interval %q", path, fc.Reconcile.Interval)
		}
		cfg.ReconcileInterval = d
	}
	setBool(&cfg.ReconcileVerify, fc.Reconcile.Verify)
	setBool(&cfg.ReconcileRemoveOrphans, fc.Reconcile.RemoveOrphans)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func logConfig(cfg *Config) {
	if cfg.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:         %s", cfg.ConfigFile)
	}
	logging.Info("  CACHE_DIR:           %s", cfg.CacheDir)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  CACHE_PREFIX:        %s", cfg.CachePrefix)
	logging.Info("  DECODE_SHRINK:       %d", cfg.DecodeShrink)
	logging.Info("  COPY_LOCAL:          %v", cfg.CopyLocal)
	if len(cfg.LocalRoots) > 0 {
		logging.Info("  LOCAL_ROOTS:         %s", strings.Join(cfg.LocalRoots, string(filepath.ListSeparator)))
	} else {
		logging.Info("  LOCAL_ROOTS:         none (URLs and resources only)")
	}
	logging.Info("  FETCH_TIMEOUT:       %v", cfg.FetchTimeout)
	if cfg.FetchWorkers > 0 {
		logging.Info("  FETCH_WORKERS:       %d", cfg.FetchWorkers)
	} else {
		logging.Info("  FETCH_WORKERS:       auto")
	}
	logging.Info("  LOG_STATIC_FILES:    %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", cfg.LogLevel)
	if cfg.ReconcileInterval > 0 {
		logging.Info("  RECONCILE_INTERVAL:  %v (verify: %v, remove orphans: %v)",
			cfg.ReconcileInterval, cfg.ReconcileVerify, cfg.ReconcileRemoveOrphans)
	} else {
		logging.Info("  RECONCILE_INTERVAL:  disabled")
	}
}

// envReader reads typed values, falling back on missing or invalid input.
type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, fallback string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return fallback
}

// list splits a PATH-style value. Empty elements are dropped.
func (e envReader) list(key string, fallback []string) []string {
	value := e.getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range filepath.SplitList(value) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (e envReader) boolean(key string, fallback bool) bool {
	value := e.getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func (e envReader) positiveInt(key string, fallback int) int {
	value := e.getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		logging.Warn("Invalid value for %s: %q, using default: %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	value := e.getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, fallback)
		return fallback
	}
	return parsed
}

// interval is duration that also accepts "0" to disable.
func (e envReader) interval(key string, fallback time.Duration) time.Duration {
	if e.getenv(key) == "0" {
		return 0
	}
	return e.duration(key, fallback)
}
