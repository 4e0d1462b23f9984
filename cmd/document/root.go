package document

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/spf13/cobra"
)

var (
	docStore *store.Store

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Perform document store operations",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(putCmd)
	DocumentCommands.AddCommand(deleteCmd)
	DocumentCommands.AddCommand(existsCmd)
	DocumentCommands.AddCommand(lsCmd)
	DocumentCommands.AddCommand(mkdirCmd)
	DocumentCommands.AddCommand(historyCmd)
	DocumentCommands.AddCommand(perfTestCmd)
}

// openStore opens the configured document store
func openStore(cmd *cobra.Command, _ []string) error {
	var err error
	docStore, err = util.OpenStore(cmd)
	return err
}

// closeStore stops the background work of the store
func closeStore(_ *cobra.Command, _ []string) error {
	if docStore == nil {
		return nil
	}
	return docStore.Close()
}
