package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5151, cfg.ListenPort)
	assert.Equal(t, 24*time.Hour, cfg.OperationRetentionWindow.Std())
	assert.Equal(t, time.Hour, cfg.OperationCleanupInterval.Std())
	assert.Equal(t, "/var/lib/backy/pool-metadata.json", cfg.MetadataPath)
	assert.Equal(t, "sudo", cfg.ElevationCommand)
	assert.True(t, cfg.AutoMountOnRecover)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5151, cfg.ListenPort)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
apiKey: secret123
listenPort: 8080
excludedDrives:
  - /dev/sda
  - nvme*
fileCacheTimeToLiveSeconds: 10
operationRetentionWindow: 48h
driveRefreshInterval: 90s
autoMountOnRecover: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret123", cfg.APIKey)
	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, []string{"/dev/sda", "nvme*"}, cfg.ExcludedDrives)
	assert.Equal(t, 10*time.Second, cfg.FileCacheTTL())
	assert.Equal(t, 48*time.Hour, cfg.OperationRetentionWindow.Std())
	assert.Equal(t, 90*time.Second, cfg.DriveRefreshInterval.Std())
	assert.False(t, cfg.AutoMountOnRecover)

	// Untouched keys keep their defaults.
	assert.Equal(t, "/var/lib/backy/pool-metadata.json", cfg.MetadataPath)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenPort: [nope"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.ListenPort = 0 }, true},
		{"port too large", func(c *Config) { c.ListenPort = 70000 }, true},
		{"negative ttl", func(c *Config) { c.FileCacheTimeToLiveSeconds = -1 }, true},
		{"zero retention", func(c *Config) { c.OperationRetentionWindow = Duration(0) }, true},
		{"empty metadata path", func(c *Config) { c.MetadataPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
