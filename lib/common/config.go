package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultBaseDir            = "data"
	DefaultCacheMaxSize       = 1000
	DefaultCacheTTLMinutes    = 15
	DefaultLockTimeoutSeconds = 30
	DefaultVersioningEnabled  = true
	DefaultMaxVersions        = 10
	DefaultLogLevel           = "info"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// StoreConfig holds all construction-time parameters of a document store.
// It is not part of the runtime API: changing it requires a new store.
type StoreConfig struct {
	// BaseDir is the root directory, every document path is relative to it
	BaseDir string

	// Cache parameters
	CacheMaxSize    int
	CacheTTLMinutes int

	// LockTimeoutSeconds bounds how long Lock and ExecuteInTransaction wait for a single path
	LockTimeoutSeconds int

	// Versioning parameters
	VersioningEnabled bool
	MaxVersions       int

	// Logging configuration
	LogLevel string
}

// DefaultStoreConfig returns a StoreConfig with all default values set
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BaseDir:            DefaultBaseDir,
		CacheMaxSize:       DefaultCacheMaxSize,
		CacheTTLMinutes:    DefaultCacheTTLMinutes,
		LockTimeoutSeconds: DefaultLockTimeoutSeconds,
		VersioningEnabled:  DefaultVersioningEnabled,
		MaxVersions:        DefaultMaxVersions,
		LogLevel:           DefaultLogLevel,
	}
}

// CacheTTL returns the cache time-to-live as a duration
func (c *StoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// LockTimeout returns the lock acquisition timeout as a duration
func (c *StoreConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// Validate checks the configuration for values that can not be used to build a store
func (c *StoreConfig) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base directory must not be empty")
	}
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("cache max size must be positive, got %d", c.CacheMaxSize)
	}
	if c.CacheTTLMinutes <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d minutes", c.CacheTTLMinutes)
	}
	if c.LockTimeoutSeconds < 0 {
		return fmt.Errorf("lock timeout must not be negative, got %d seconds", c.LockTimeoutSeconds)
	}
	if c.VersioningEnabled && c.MaxVersions <= 0 {
		return fmt.Errorf("max versions must be positive when versioning is enabled, got %d", c.MaxVersions)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Storage
	addSection("Storage")
	addField("Base Directory", c.BaseDir)

	// Cache
	addSection("Cache")
	addField("Max Entries", strconv.Itoa(c.CacheMaxSize))
	addField("TTL", fmt.Sprintf("%d min", c.CacheTTLMinutes))

	// Locking
	addSection("Locking")
	addField("Timeout", fmt.Sprintf("%d sec", c.LockTimeoutSeconds))

	// Versioning
	addSection("Versioning")
	addField("Enabled", strconv.FormatBool(c.VersioningEnabled))
	if c.VersioningEnabled {
		addField("Max Versions", strconv.Itoa(c.MaxVersions))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
