package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/spf13/cobra"
)

var (
	getMeta     bool
	lsSuffix    string
	historyShow bool

	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Reads the document at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			doc, ok := store.ReadDocument[json.RawMessage](cmd.Context(), docStore, path)
			if !ok {
				return fmt.Errorf("document %s not found", path)
			}
			if getMeta {
				fmt.Printf("version=%s, lastModified=%s\n", doc.Version, doc.LastModified.Format(time.RFC3339Nano))
			}
			return printJSON(doc.Payload)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [path] [json]",
		Short: "Writes a json value as the document at a path (use - to read the value from stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			value, err := readValue(args[1])
			if err != nil {
				return err
			}
			if !store.Write(cmd.Context(), docStore, path, value) {
				return fmt.Errorf("failed to write %s (see log)", path)
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Deletes a document or a directory tree",
		Long: "Deletes a document or a directory tree. The snapshots of a deleted document are kept, " +
			"deleting a directory removes everything below it including snapshots and lock files. " +
			"A directory is not deleted while a document below it is locked by this process.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !docStore.Delete(cmd.Context(), args[0]) {
				return fmt.Errorf("failed to delete %s (see log)", args[0])
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [path]",
		Short: "Checks if a document or directory exists",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("path=%s, found=%t\n", args[0], docStore.Exists(cmd.Context(), args[0]))
		},
	}
	lsCmd = &cobra.Command{
		Use:   "ls [directory]",
		Short: "Lists the files of a directory (default: the base directory)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			var filter func(string) bool
			if lsSuffix != "" {
				filter = func(name string) bool { return strings.HasSuffix(name, lsSuffix) }
			}
			for _, name := range docStore.ListFiles(cmd.Context(), dir, filter) {
				fmt.Println(name)
			}
		},
	}
	mkdirCmd = &cobra.Command{
		Use:   "mkdir [directory]",
		Short: "Creates a directory including all parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !docStore.CreateDirectory(cmd.Context(), args[0]) {
				return fmt.Errorf("failed to create %s (see log)", args[0])
			}
			fmt.Println("mkdir successfully")
			return nil
		},
	}
	historyCmd = &cobra.Command{
		Use:   "history [path]",
		Short: "Lists the snapshots of a document, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := docStore.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Printf("no snapshots of %s\n", args[0])
				return nil
			}
			for i, snapshot := range snapshots {
				fmt.Printf("%3d  %-36s  %s\n", i, snapshot.Version, snapshot.Timestamp.Format(time.RFC3339Nano))
				if !historyShow {
					continue
				}
				doc, err := store.ReadSnapshot[json.RawMessage](cmd.Context(), docStore, snapshot)
				if err != nil {
					return err
				}
				if err := printJSON(doc.Payload); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

func init() {
	getCmd.Flags().BoolVar(&getMeta, "meta", false, "Also print version and modification time")
	lsCmd.Flags().StringVar(&lsSuffix, "suffix", "", "Only list files with this suffix (e.g. .json)")
	historyCmd.Flags().BoolVar(&historyShow, "show", false, "Also print the payload of every snapshot")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// readValue returns the json value of arg, or of stdin if arg is "-"
func readValue(arg string) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("value is not valid json")
	}
	return data, nil
}

// printJSON prints raw json indented to stdout
func printJSON(raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}
