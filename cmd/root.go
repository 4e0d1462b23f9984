package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/dDoc/cmd/document"
	"github.com/ValentinKolb/dDoc/cmd/lock"
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ddoc",
		Short: "embedded JSON document store",
		Long: fmt.Sprintf(`dDoc (v%s)

A durable, concurrency-safe JSON document store on the local filesystem
with a TTL+LRU read cache, per-document locks, multi-document
transactions and version history.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dDoc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dDoc v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(document.DocumentCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	ctx, cancel := util.SignalContext(context.Background())
	defer cancel()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
