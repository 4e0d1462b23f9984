package util

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DDOC_BASE_DIR)
	EnvPrefix = "ddoc"
)

var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the store configuration flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "base-dir"
	cmd.PersistentFlags().String(key, common.DefaultBaseDir, WrapString("Root directory of the document store, all document paths are relative to it"))

	key = "cache-size"
	cmd.PersistentFlags().Int(key, common.DefaultCacheMaxSize, WrapString("Maximum number of documents kept in the read cache"))

	key = "cache-ttl"
	cmd.PersistentFlags().Int(key, common.DefaultCacheTTLMinutes, WrapString("Time in minutes a cached document is served before it is read from disk again"))

	key = "lock-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultLockTimeoutSeconds, WrapString("Time in seconds to wait for a lock held by another owner (0 fails immediately)"))

	key = "versioning"
	cmd.PersistentFlags().Bool(key, common.DefaultVersioningEnabled, WrapString("Whether the previous state of a document is snapshotted before it is overwritten"))

	key = "max-versions"
	cmd.PersistentFlags().Int(key, common.DefaultMaxVersions, WrapString("Number of snapshots kept per document"))

	key = "log-level"
	cmd.PersistentFlags().String(key, common.DefaultLogLevel, WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags (including inherited persistent flags) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() common.StoreConfig {
	return common.StoreConfig{
		BaseDir:            viper.GetString("base-dir"),
		CacheMaxSize:       viper.GetInt("cache-size"),
		CacheTTLMinutes:    viper.GetInt("cache-ttl"),
		LockTimeoutSeconds: viper.GetInt("lock-timeout"),
		VersioningEnabled:  viper.GetBool("versioning"),
		MaxVersions:        viper.GetInt("max-versions"),
		LogLevel:           viper.GetString("log-level"),
	}
}

// OpenStore binds the flags of cmd, initializes the loggers and opens the configured store.
func OpenStore(cmd *cobra.Command) (*store.Store, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	config := GetStoreConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(config); err != nil {
		return nil, err
	}

	Logger.Debugf("configuration:%s", config.String())
	return store.NewStore(config, nil)
}

// SignalContext returns a context that is canceled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
