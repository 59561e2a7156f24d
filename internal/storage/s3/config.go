package s3

import (
	"fmt"
	"strings"

	"github.com/grilobridge/grilobridge/internal/circuit"
)

// Config represents one bucket exposed as a provider
type Config struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	MaxRetries      int    `yaml:"max_retries"`

	// Resolve advertises direct metadata resolution through HeadObject.
	Resolve bool `yaml:"resolve"`
	// PageSize bounds each ListObjectsV2 call.
	PageSize int32 `yaml:"page_size"`

	// Breaker guards listing and resolving against a failing bucket.
	Breaker circuit.Config `yaml:"breaker"`
}

// NewDefaultConfig returns a config with defaults for everything but the
// bucket.
func NewDefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
		Resolve:    true,
		PageSize:   1000,
		Breaker:    circuit.DefaultConfig(),
	}
}

// Validate checks the config and normalizes the prefix to end with "/".
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.PageSize < 0 || c.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 0 and 1000")
	}
	c.Prefix = strings.TrimLeft(c.Prefix, "/")
	if c.Prefix != "" && !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	return nil
}

// ProviderID returns the configured id, falling back to the bucket name.
func (c *Config) ProviderID() string {
	if c.ID != "" {
		return c.ID
	}
	return "s3-" + c.Bucket
}

// DisplayName returns the configured name, falling back to the bucket and
// prefix.
func (c *Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return "s3://" + c.Bucket + "/" + c.Prefix
}
