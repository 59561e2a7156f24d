package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/grilobridge/grilobridge/pkg/types"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global    GlobalConfig    `yaml:"global"`
	Plugin    PluginConfig    `yaml:"plugin"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	FUSE      FUSEConfig      `yaml:"fuse"`
	Providers ProvidersConfig `yaml:"providers"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"`

	// Rotation of LogFile
	LogMaxSizeMB  int64 `yaml:"log_max_size_mb"`
	LogMaxBackups int   `yaml:"log_max_backups"`
	LogCompress   bool  `yaml:"log_compress"`
}

// PluginConfig represents the source instance defaults
type PluginConfig struct {
	RequireResolve     bool   `yaml:"require_resolve"`
	BrowseResolution   string `yaml:"browse_resolution"`
	MetadataResolution string `yaml:"metadata_resolution"`
	DefaultMime        string `yaml:"default_mime"`
	IdleRelay          bool   `yaml:"idle_relay"`
}

// APIConfig represents the HTTP frontend settings
type APIConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Address   string            `yaml:"address"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// FUSEConfig represents the read-only mount settings
type FUSEConfig struct {
	MountPoint string        `yaml:"mount_point"`
	AttrTTL    time.Duration `yaml:"attr_ttl"`
	EntryTTL   time.Duration `yaml:"entry_ttl"`
	AllowOther bool          `yaml:"allow_other"`
	Debug      bool          `yaml:"debug"`
}

// ProvidersConfig lists the providers started by the CLI
type ProvidersConfig struct {
	S3       []S3ProviderConfig `yaml:"s3"`
	Catalogs []string           `yaml:"catalogs"`

	// OpenAttempts bounds how often a provider is opened before startup
	// gives up on it.
	OpenAttempts int           `yaml:"open_attempts"`
	OpenBackoff  time.Duration `yaml:"open_backoff"`
}

// S3ProviderConfig represents one bucket exposed as a provider
type S3ProviderConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	MaxRetries      int    `yaml:"max_retries"`
	Resolve         bool   `yaml:"resolve"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFile:       "",
			LogFormat:     "text",
			LogMaxSizeMB:  100,
			LogMaxBackups: 5,
		},
		Plugin: PluginConfig{
			RequireResolve:     false,
			BrowseResolution:   "fast-only",
			MetadataResolution: "full",
			DefaultMime:        "audio/unknown",
			IdleRelay:          false,
		},
		API: APIConfig{
			Enabled:       true,
			Address:       "127.0.0.1:8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  60 * time.Second,
			BrowseTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Address:   "127.0.0.1:9090",
			Path:      "/metrics",
			Namespace: "grilobridge",
			Labels: map[string]string{
				"service": "grilobridge",
			},
		},
		FUSE: FUSEConfig{
			MountPoint: "",
			AttrTTL:    time.Second,
			EntryTTL:   time.Second,
		},
		Providers: ProvidersConfig{
			OpenAttempts: 3,
			OpenBackoff:  500 * time.Millisecond,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename) // #nosec G304 - path is operator supplied
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("GRILOBRIDGE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("GRILOBRIDGE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("GRILOBRIDGE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Plugin settings
	if val := os.Getenv("GRILOBRIDGE_REQUIRE_RESOLVE"); val != "" {
		c.Plugin.RequireResolve = parseBool(val)
	}
	if val := os.Getenv("GRILOBRIDGE_BROWSE_RESOLUTION"); val != "" {
		c.Plugin.BrowseResolution = val
	}
	if val := os.Getenv("GRILOBRIDGE_METADATA_RESOLUTION"); val != "" {
		c.Plugin.MetadataResolution = val
	}
	if val := os.Getenv("GRILOBRIDGE_DEFAULT_MIME"); val != "" {
		c.Plugin.DefaultMime = val
	}

	// Frontends
	if val := os.Getenv("GRILOBRIDGE_API_ENABLED"); val != "" {
		c.API.Enabled = parseBool(val)
	}
	if val := os.Getenv("GRILOBRIDGE_API_ADDRESS"); val != "" {
		c.API.Address = val
	}
	if val := os.Getenv("GRILOBRIDGE_BROWSE_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid GRILOBRIDGE_BROWSE_TIMEOUT: %w", err)
		}
		c.API.BrowseTimeout = d
	}
	if val := os.Getenv("GRILOBRIDGE_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = parseBool(val)
	}
	if val := os.Getenv("GRILOBRIDGE_METRICS_ADDRESS"); val != "" {
		c.Metrics.Address = val
	}
	if val := os.Getenv("GRILOBRIDGE_MOUNT_POINT"); val != "" {
		c.FUSE.MountPoint = val
	}

	// Providers
	if val := os.Getenv("GRILOBRIDGE_CATALOGS"); val != "" {
		for _, path := range strings.Split(val, string(os.PathListSeparator)) {
			if path = strings.TrimSpace(path); path != "" {
				c.Providers.Catalogs = append(c.Providers.Catalogs, path)
			}
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.Global.LogLevel)) {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, strings.ToLower(c.Global.LogFormat)) {
		return fmt.Errorf("invalid log_format: %s (must be one of: %s)",
			c.Global.LogFormat, strings.Join(validFormats, ", "))
	}

	if c.Global.LogMaxSizeMB < 0 || c.Global.LogMaxBackups < 0 {
		return fmt.Errorf("log_max_size_mb and log_max_backups cannot be negative")
	}

	if _, err := types.ParseResolution(c.Plugin.BrowseResolution); err != nil {
		return fmt.Errorf("browse_resolution: %w", err)
	}
	if _, err := types.ParseResolution(c.Plugin.MetadataResolution); err != nil {
		return fmt.Errorf("metadata_resolution: %w", err)
	}

	if strings.TrimSpace(c.Plugin.DefaultMime) == "" {
		return fmt.Errorf("default_mime cannot be empty")
	}

	if c.API.Enabled {
		if c.API.Address == "" {
			return fmt.Errorf("api address cannot be empty when the API is enabled")
		}
		if c.API.BrowseTimeout <= 0 {
			return fmt.Errorf("api browse_timeout must be greater than 0")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
		}
		if c.API.Enabled && c.Metrics.Address == c.API.Address {
			return fmt.Errorf("metrics address and api address cannot be the same")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with /: %s", c.Metrics.Path)
		}
	}

	if c.Providers.OpenAttempts < 1 {
		return fmt.Errorf("providers open_attempts must be at least 1")
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers.S3 {
		if p.Bucket == "" {
			return fmt.Errorf("providers.s3[%d]: bucket cannot be empty", i)
		}
		id := p.ProviderID()
		if seen[id] {
			return fmt.Errorf("providers.s3[%d]: duplicate provider id %s", i, id)
		}
		seen[id] = true
		if p.MaxRetries < 0 {
			return fmt.Errorf("providers.s3[%d]: max_retries cannot be negative", i)
		}
	}

	return nil
}

// ProviderID returns the configured id, falling back to the bucket name.
func (p S3ProviderConfig) ProviderID() string {
	if p.ID != "" {
		return p.ID
	}
	return "s3-" + p.Bucket
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	return err == nil && b
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
