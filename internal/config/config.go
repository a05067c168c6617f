package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file LoadFromDir looks for.
const FileName = "composer.yaml"

// StorageDrivers lists the accepted values of storage.driver.
var StorageDrivers = []string{"memory", "file", "sqlite", "postgres", "mysql", "redis"}

// Config represents the composer configuration
type Config struct {
	Title       string            `yaml:"title"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Export      ExportConfig      `yaml:"export"`
	Registry    RegistryConfig    `yaml:"registry"`
	API         *APIConfig        `yaml:"api,omitempty"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// StorageConfig selects the key-value backend for saved layouts
type StorageConfig struct {
	Driver   string `yaml:"driver"`             // memory, file, sqlite, postgres, mysql, redis
	Path     string `yaml:"path,omitempty"`     // file: directory, sqlite: database file
	DSN      string `yaml:"dsn,omitempty"`      // postgres/mysql connection string (env vars expanded)
	Table    string `yaml:"table,omitempty"`    // sql table name (default: composer_kv)
	Address  string `yaml:"address,omitempty"`  // redis host:port
	Password string `yaml:"password,omitempty"` // redis password (env vars expanded)
	DB       int    `yaml:"db,omitempty"`       // redis database number
}

// PersistenceConfig controls how layouts are keyed and written
type PersistenceConfig struct {
	Namespace       string `yaml:"namespace"`        // section states (default: builder)
	BlocksNamespace string `yaml:"blocks_namespace"` // block collections (default: blocks)
	SchemaVersion   int    `yaml:"schema_version"`
	CoalesceWindow  string `yaml:"coalesce_window"` // e.g. "250ms"
	Timeout         string `yaml:"timeout"`         // per store call, e.g. "5s"
	StarterBlocks   bool   `yaml:"starter_blocks"`  // seed new workspaces with the starter page
}

// ExportConfig holds the exported document settings
type ExportConfig struct {
	Filename string `yaml:"filename"`
	Title    string `yaml:"title"`
	Lang     string `yaml:"lang"`
}

// RegistryConfig points at an optional template catalogue file
type RegistryConfig struct {
	File  string `yaml:"file,omitempty"` // empty uses the built-in catalogue
	Watch bool   `yaml:"watch"`          // reload the file when it changes
}

// APIConfig holds REST API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // default: 10
	Burst             int     `yaml:"burst,omitempty"`               // default: 20
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// CacheConfig holds the exported artifact cache settings
type CacheConfig struct {
	TTL string `yaml:"ttl"` // empty or "0" disables caching
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetCoalesceWindow returns the write coalescing window (default: 250ms)
func (c PersistenceConfig) GetCoalesceWindow() time.Duration {
	return parseDuration(c.CoalesceWindow, 250*time.Millisecond)
}

// GetTimeout returns the per-call store timeout (default: 5s)
func (c PersistenceConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 5*time.Second)
}

// GetSchemaVersion returns the schema version (default: 1)
func (c PersistenceConfig) GetSchemaVersion() int {
	if c.SchemaVersion <= 0 {
		return 1
	}
	return c.SchemaVersion
}

// GetTTL returns the artifact cache TTL (0 if caching is disabled)
func (c CacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 0)
}

// IsEnabled returns true if exported artifacts are cached
func (c CacheConfig) IsEnabled() bool {
	return c.GetTTL() > 0
}

// Addr returns host:port for the HTTP listener
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Composer",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   ".composer",
		},
		Persistence: PersistenceConfig{
			Namespace:       "builder",
			BlocksNamespace: "blocks",
			SchemaVersion:   1,
			CoalesceWindow:  "250ms",
			Timeout:         "5s",
		},
		Export: ExportConfig{
			Filename: "site.html",
			Title:    "Your Site",
			Lang:     "en",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if !slices.Contains(StorageDrivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver %q: must be one of %v", c.Storage.Driver, StorageDrivers)
	}
	switch c.Storage.Driver {
	case "postgres", "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	case "redis":
		if c.Storage.Address == "" {
			return errors.New("storage.address is required for driver \"redis\"")
		}
	}
	if c.Persistence.SchemaVersion < 0 {
		return fmt.Errorf("persistence.schema_version must not be negative, got %d", c.Persistence.SchemaVersion)
	}
	if c.Persistence.Namespace != "" && c.Persistence.Namespace == c.Persistence.BlocksNamespace {
		return errors.New("persistence.namespace and persistence.blocks_namespace must differ")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// expandEnv substitutes ${VAR} references in the string settings that
// commonly carry secrets or per-environment values.
func (c *Config) expandEnv() {
	for _, s := range []*string{
		&c.Storage.Path,
		&c.Storage.DSN,
		&c.Storage.Address,
		&c.Storage.Password,
		&c.Registry.File,
		&c.Export.Title,
	} {
		*s = os.ExpandEnv(*s)
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration.
// A .env file next to the config is loaded into the environment first;
// variables already set take precedence.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.expandEnv()

	if config.Registry.File != "" && !filepath.IsAbs(config.Registry.File) {
		config.Registry.File = filepath.Join(filepath.Dir(configPath), config.Registry.File)
	}

	return config, nil
}

// LoadFromDir looks for composer.yaml in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
