package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStoreConfig(t *testing.T) {
	conf := DefaultStoreConfig()

	require.NoError(t, conf.Validate())
	assert.Equal(t, 1000, conf.CacheMaxSize)
	assert.Equal(t, 15*time.Minute, conf.CacheTTL())
	assert.Equal(t, 30*time.Second, conf.LockTimeout())
	assert.True(t, conf.VersioningEnabled)
	assert.Equal(t, 10, conf.MaxVersions)
}

func TestStoreConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *StoreConfig)
	}{
		{"empty base dir", func(c *StoreConfig) { c.BaseDir = " " }},
		{"zero cache size", func(c *StoreConfig) { c.CacheMaxSize = 0 }},
		{"zero ttl", func(c *StoreConfig) { c.CacheTTLMinutes = 0 }},
		{"negative lock timeout", func(c *StoreConfig) { c.LockTimeoutSeconds = -1 }},
		{"no versions kept", func(c *StoreConfig) { c.MaxVersions = 0 }},
		{"bad log level", func(c *StoreConfig) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultStoreConfig()
			tt.mutate(&conf)
			assert.Error(t, conf.Validate())
		})
	}

	t.Run("versioning disabled ignores max versions", func(t *testing.T) {
		conf := DefaultStoreConfig()
		conf.VersioningEnabled = false
		conf.MaxVersions = 0
		assert.NoError(t, conf.Validate())
	})
}

func TestStoreConfigString(t *testing.T) {
	conf := DefaultStoreConfig()
	out := conf.String()

	assert.Contains(t, out, "STORAGE")
	assert.Contains(t, out, "Base Directory")
	assert.Contains(t, out, "15 min")
	assert.Contains(t, out, "30 sec")
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}
