package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"samplevault/internal/pairing"
)

const (
	DefaultDBDriver   = "sqlite"
	DefaultDBFileName = ".samplevault.db"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultBlobDriver = "local"
	DefaultLockDriver = "local"
	DefaultLockTTL    = "30s"

	DefaultAttachmentGCBatchSize      = 500
	DefaultAttachmentBatchConcurrency = 4
	DefaultAttachmentBlobCacheSize    = 1024
	DefaultAttachmentGCMinAge         = "24h"

	DefaultTelemetryNamespace = "samplevault"

	configFileName           = ".samplevault.toml"
	configDirEnvKey          = "SAMPLEVAULT_CONFIG_DIR"
	trustProjectConfigEnvKey = "SAMPLEVAULT_TRUST_PROJECT_CONFIG"
)

// S3Config configures the s3 blob driver.
type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	Prefix    string `toml:"prefix"`
	PathStyle bool   `toml:"path_style"`
}

// BlobConfig selects where blob bytes live.
type BlobConfig struct {
	Driver string   `toml:"driver"`
	Root   string   `toml:"root"`
	S3     S3Config `toml:"s3"`
}

// AttachmentConfig defines runtime configuration for attachment handling.
type AttachmentConfig struct {
	GCBatchSize      int    `toml:"gc_batch_size"`
	GCMinAge         string `toml:"gc_min_age"`
	BatchConcurrency int    `toml:"batch_concurrency"`
	BlobCacheSize    int    `toml:"blob_cache_size"`
}

// GCMinAgeDuration parses GCMinAge, falling back to DefaultAttachmentGCMinAge.
// Zero is allowed and disables the grace period.
func (a AttachmentConfig) GCMinAgeDuration() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(a.GCMinAge)); err == nil && d >= 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultAttachmentGCMinAge)
	return d
}

// PairingConfig overrides the forward/reverse filename conventions.
type PairingConfig struct {
	Patterns []pairing.Pattern `toml:"patterns"`
}

// LockingConfig selects the per-attachable lock implementation.
type LockingConfig struct {
	Driver    string `toml:"driver"`
	RedisAddr string `toml:"redis_addr"`
	TTL       string `toml:"ttl"`
}

// TTLDuration parses TTL, falling back to DefaultLockTTL.
func (l LockingConfig) TTLDuration() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(l.TTL)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultLockTTL)
	return d
}

// TelemetryConfig controls Prometheus metric export.
type TelemetryConfig struct {
	Namespace string `toml:"namespace"`
	Textfile  string `toml:"textfile"`
}

// Config defines runtime configuration for samplevault.
type Config struct {
	DBDriver                 string           `toml:"db_driver"`
	DBPath                   string           `toml:"db_path"`
	DatabaseURL              string           `toml:"database_url"`
	LogLevel                 string           `toml:"log_level"`
	LogFormat                string           `toml:"log_format"`
	Blobs                    BlobConfig       `toml:"blobs"`
	Attachments              AttachmentConfig `toml:"attachments"`
	Pairing                  PairingConfig    `toml:"pairing"`
	Locking                  LockingConfig    `toml:"locking"`
	Telemetry                TelemetryConfig  `toml:"telemetry"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		DBDriver:  DefaultDBDriver,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Blobs: BlobConfig{
			Driver: DefaultBlobDriver,
		},
		Attachments: AttachmentConfig{
			GCBatchSize:      DefaultAttachmentGCBatchSize,
			GCMinAge:         DefaultAttachmentGCMinAge,
			BatchConcurrency: DefaultAttachmentBatchConcurrency,
			BlobCacheSize:    DefaultAttachmentBlobCacheSize,
		},
		Locking: LockingConfig{
			Driver: DefaultLockDriver,
			TTL:    DefaultLockTTL,
		},
		Telemetry: TelemetryConfig{
			Namespace: DefaultTelemetryNamespace,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"db_driver",
	"db_path",
	"database_url",
	"log_level",
	"log_format",
	"blobs.driver",
	"blobs.root",
	"blobs.s3.bucket",
	"blobs.s3.region",
	"blobs.s3.endpoint",
	"blobs.s3.prefix",
	"blobs.s3.path_style",
	"attachments.gc_batch_size",
	"attachments.gc_min_age",
	"attachments.batch_concurrency",
	"attachments.blob_cache_size",
	"locking.driver",
	"locking.redis_addr",
	"locking.ttl",
	"telemetry.namespace",
	"telemetry.textfile",
}

// AllowedKeys returns the set of valid config keys. Pairing patterns are a
// table array and are edited in the file directly.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "db_driver":
		return c.DBDriver, nil
	case "db_path":
		return c.DBPath, nil
	case "database_url":
		return c.DatabaseURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "blobs.driver":
		return c.Blobs.Driver, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.s3.bucket":
		return c.Blobs.S3.Bucket, nil
	case "blobs.s3.region":
		return c.Blobs.S3.Region, nil
	case "blobs.s3.endpoint":
		return c.Blobs.S3.Endpoint, nil
	case "blobs.s3.prefix":
		return c.Blobs.S3.Prefix, nil
	case "blobs.s3.path_style":
		return strconv.FormatBool(c.Blobs.S3.PathStyle), nil
	case "attachments.gc_batch_size":
		return strconv.Itoa(c.Attachments.GCBatchSize), nil
	case "attachments.gc_min_age":
		return c.Attachments.GCMinAge, nil
	case "attachments.batch_concurrency":
		return strconv.Itoa(c.Attachments.BatchConcurrency), nil
	case "attachments.blob_cache_size":
		return strconv.Itoa(c.Attachments.BlobCacheSize), nil
	case "locking.driver":
		return c.Locking.Driver, nil
	case "locking.redis_addr":
		return c.Locking.RedisAddr, nil
	case "locking.ttl":
		return c.Locking.TTL, nil
	case "telemetry.namespace":
		return c.Telemetry.Namespace, nil
	case "telemetry.textfile":
		return c.Telemetry.Textfile, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if dbPath := os.Getenv("SAMPLEVAULT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if driver := strings.TrimSpace(os.Getenv("SAMPLEVAULT_DB_DRIVER")); driver != "" {
		cfg.DBDriver = driver
	}
	if url := strings.TrimSpace(os.Getenv("SAMPLEVAULT_DATABASE_URL")); url != "" {
		cfg.DatabaseURL = url
	}
	if driver := strings.TrimSpace(os.Getenv("SAMPLEVAULT_BLOB_DRIVER")); driver != "" {
		cfg.Blobs.Driver = driver
	}
	if addr := strings.TrimSpace(os.Getenv("SAMPLEVAULT_REDIS_ADDR")); addr != "" {
		cfg.Locking.RedisAddr = addr
		if cfg.Locking.Driver == "" || cfg.Locking.Driver == DefaultLockDriver {
			cfg.Locking.Driver = "redis"
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

// BlobRoot returns the local blob directory, defaulting to a directory next
// to the sqlite database.
func (c *Config) BlobRoot() string {
	if root := strings.TrimSpace(c.Blobs.Root); root != "" {
		return root
	}
	return filepath.Join(filepath.Dir(c.DBPath), ".samplevault", "blobs")
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "attachments.gc_batch_size", "attachments.batch_concurrency", "attachments.blob_cache_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "blobs.s3.path_style":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "attachments.gc_min_age":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%s must be a non-negative duration such as 24h", key)
		}
		return value, nil
	case "locking.ttl":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s", key)
		}
		return value, nil
	case "db_driver":
		switch strings.ToLower(value) {
		case "sqlite", "postgres":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("db_driver must be sqlite or postgres")
	case "blobs.driver":
		switch strings.ToLower(value) {
		case "local", "memory", "s3":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("blobs.driver must be local, memory or s3")
	case "locking.driver":
		switch strings.ToLower(value) {
		case "local", "redis":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("locking.driver must be local or redis")
	case "log_format":
		switch strings.ToLower(value) {
		case "text", "json":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("log_format must be text or json")
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.DBDriver) == "" {
		c.DBDriver = DefaultDBDriver
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = DefaultLogFormat
	}
	if strings.TrimSpace(c.Blobs.Driver) == "" {
		c.Blobs.Driver = DefaultBlobDriver
	}
	if c.Attachments.GCBatchSize <= 0 {
		c.Attachments.GCBatchSize = DefaultAttachmentGCBatchSize
	}
	if strings.TrimSpace(c.Attachments.GCMinAge) == "" {
		c.Attachments.GCMinAge = DefaultAttachmentGCMinAge
	}
	if c.Attachments.BatchConcurrency <= 0 {
		c.Attachments.BatchConcurrency = DefaultAttachmentBatchConcurrency
	}
	if c.Attachments.BlobCacheSize <= 0 {
		c.Attachments.BlobCacheSize = DefaultAttachmentBlobCacheSize
	}
	if strings.TrimSpace(c.Locking.Driver) == "" {
		c.Locking.Driver = DefaultLockDriver
	}
	if strings.TrimSpace(c.Locking.TTL) == "" {
		c.Locking.TTL = DefaultLockTTL
	}
	if strings.TrimSpace(c.Telemetry.Namespace) == "" {
		c.Telemetry.Namespace = DefaultTelemetryNamespace
	}
}
