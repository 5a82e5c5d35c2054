package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agent configuration. Values come from an optional YAML
// file; command-line flags override file values.
type Config struct {
	// APIKey is the shared secret required in the X-Api-Key header.
	APIKey string `yaml:"apiKey"`

	// ListenPort is the HTTP listen port.
	ListenPort int `yaml:"listenPort"`

	// ExcludedDrives lists device names or paths to hide from the drive
	// snapshot. A trailing '*' matches any suffix.
	ExcludedDrives []string `yaml:"excludedDrives"`

	// FileCacheTimeToLiveSeconds is the TTL for cached /proc and /sys reads.
	FileCacheTimeToLiveSeconds int `yaml:"fileCacheTimeToLiveSeconds"`

	// OperationRetentionWindow is how long completed operations stay queryable.
	OperationRetentionWindow Duration `yaml:"operationRetentionWindow"`

	// OperationCleanupInterval is how often completed operations are swept.
	OperationCleanupInterval Duration `yaml:"operationCleanupInterval"`

	// AutoMountOnRecover allows startup reconciliation to run mount.
	AutoMountOnRecover bool `yaml:"autoMountOnRecover"`

	// MetadataPath is the pool metadata file location.
	MetadataPath string `yaml:"metadataPath"`

	// ElevationCommand prefixes mutating external commands (e.g. "sudo").
	// Empty disables elevation.
	ElevationCommand string `yaml:"elevationCommand"`

	// DriveRefreshInterval is the period of the background lsblk refresh.
	DriveRefreshInterval Duration `yaml:"driveRefreshInterval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// LogJSON selects JSON log output over console output.
	LogJSON bool `yaml:"logJson"`

	// ComponentLogLevels overrides the log level per component, e.g.
	// mdstat: debug.
	ComponentLogLevels map[string]string `yaml:"componentLogLevels"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		ListenPort:                 5151,
		FileCacheTimeToLiveSeconds: 5,
		OperationRetentionWindow:   Duration(24 * time.Hour),
		OperationCleanupInterval:   Duration(time.Hour),
		AutoMountOnRecover:         true,
		MetadataPath:               "/var/lib/backy/pool-metadata.json",
		ElevationCommand:           "sudo",
		DriveRefreshInterval:       Duration(60 * time.Second),
		LogLevel:                   "info",
	}
}

// Load reads the YAML file at path on top of defaults. A missing file is not
// an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.ListenPort)
	}
	if c.FileCacheTimeToLiveSeconds < 0 {
		return fmt.Errorf("invalid file cache TTL: %d", c.FileCacheTimeToLiveSeconds)
	}
	if c.OperationRetentionWindow.Std() <= 0 {
		return fmt.Errorf("invalid operation retention window: %s", c.OperationRetentionWindow.Std())
	}
	if c.OperationCleanupInterval.Std() <= 0 {
		return fmt.Errorf("invalid operation cleanup interval: %s", c.OperationCleanupInterval.Std())
	}
	if c.MetadataPath == "" {
		return fmt.Errorf("metadata path must not be empty")
	}
	if c.DriveRefreshInterval.Std() <= 0 {
		return fmt.Errorf("invalid drive refresh interval: %s", c.DriveRefreshInterval.Std())
	}
	return nil
}

// FileCacheTTL returns the file cache TTL as a duration.
func (c *Config) FileCacheTTL() time.Duration {
	return time.Duration(c.FileCacheTimeToLiveSeconds) * time.Second
}
