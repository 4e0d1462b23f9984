package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/txn"
	"github.com/spf13/cobra"
)

var (
	lockStore *store.Store
	holdFor   time.Duration
	ownerID   string

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations",
		Long: util.WrapString("Locks are held by this process only: a lock is acquired, held for --hold " +
			"and released again. Other processes using the same base directory are excluded through the lock files."),
		PersistentPreRunE:  setupLockStore,
		PersistentPostRunE: closeLockStore,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [path]",
		Short: "Acquire the lock of a document, hold it and release it",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// txnCmd represents the transaction command
	txnCmd = &cobra.Command{
		Use:   "txn [path...]",
		Short: "Acquire the locks of several documents in canonical order, hold them and release them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTxn,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(txnCmd)

	// Add flags
	LockCommands.PersistentFlags().DurationVar(&holdFor, "hold", 0, util.WrapString("How long to hold the lock before releasing it (e.g. 10s)"))
	LockCommands.PersistentFlags().StringVar(&ownerID, "owner", "", util.WrapString("Owner id to acquire the lock for (default: a random id)"))
}

// setupLockStore opens the configured store
func setupLockStore(cmd *cobra.Command, _ []string) error {
	var err error
	lockStore, err = util.OpenStore(cmd)
	if ownerID == "" {
		ownerID = lockmgr.NewOwnerID()
	}
	return err
}

func closeLockStore(_ *cobra.Command, _ []string) error {
	if lockStore == nil {
		return nil
	}
	return lockStore.Close()
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	path := args[0]
	start := time.Now()

	handle, err := lockStore.Lock(cmd.Context(), ownerID, path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer handle.Release()

	fmt.Printf("acquired=true, path=%s, owner=%s, waited=%s\n", handle.Path, ownerID, time.Since(start).Round(time.Millisecond))

	hold(cmd.Context())

	if err := handle.Release(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	fmt.Println("released=true")
	return nil
}

// runTxn handles the transaction command
func runTxn(cmd *cobra.Command, args []string) error {
	start := time.Now()

	id, err := store.ExecuteInTransaction(cmd.Context(), lockStore, ownerID, args,
		func(ctx context.Context, tx *txn.Transaction) (string, error) {
			fmt.Printf("acquired=true, paths=%s, owner=%s, waited=%s\n",
				strings.Join(tx.Paths, ","), ownerID, time.Since(start).Round(time.Millisecond))
			hold(ctx)
			return tx.ID, nil
		})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	fmt.Printf("released=true, txn=%s\n", id)
	return nil
}

// hold blocks for holdFor or until ctx is canceled
func hold(ctx context.Context) {
	if holdFor <= 0 {
		return
	}
	fmt.Printf("holding for %s...\n", holdFor)
	select {
	case <-time.After(holdFor):
	case <-ctx.Done():
	}
}
