// Command mdsctl is a small operator CLI over a Mini Document Storage
// instance: point it at a SQLite file (or run in-memory) and issue document,
// association, and info operations without writing Go, in the same
// single-binary-subcommand style as the teacher's own CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend/ephemeral"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/backend/sqlstore"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/internal/core"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/mds"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/server"
	"github.com/StevoGTA/Mini-Document-Storage-sub000/value"
)

func main() {
	defer core.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mdsctl",
	Short: "mdsctl operates a Mini Document Storage instance",
	Long: `mdsctl is a command-line client for Mini Document Storage.

It opens a durable SQLite-backed store (or an in-memory one with --db ""),
and exposes document, association, and info operations directly from
the shell, plus a "serve" subcommand that exposes the same store over HTTP.`,
}

func init() {
	rootCmd.PersistentFlags().String("db", "mds.db", `Path to the SQLite database file ("" for an in-memory ephemeral store)`)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(assocCmd)
	rootCmd.AddCommand(infoCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	if err := core.ConfigureLogger(false, level); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to configure logger: %v\n", err)
	}
}

// openBackend opens the backend named by --db: a durable sqlstore.Store when
// a non-empty path is given, or a fresh in-memory ephemeral.Store otherwise.
func openBackend(cmd *cobra.Command) (backend.Backend, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		return ephemeral.NewStore(), nil
	}
	return sqlstore.Open(cmd.Context(), path)
}

func openStore(cmd *cobra.Command) (*mds.Store, backend.Backend, error) {
	b, err := openBackend(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend: %w", err)
	}
	return mds.NewStore(b), b, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a store over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		srv := server.New(store)
		core.Component("mdsctl.serve").Info("listening", zap.String("addr", addr))
		return http.ListenAndServe(addr, srv)
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8420", "HTTP listen address")
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Document operations",
}

var docGetCmd = &cobra.Command{
	Use:   "get TYPE ID",
	Short: "Get a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		doc, err := store.GetDocument(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var docCreateCmd = &cobra.Command{
	Use:   "create TYPE [ID]",
	Short: "Create a document, reading its properties as a JSON object from stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		props, err := readProperties()
		if err != nil {
			return err
		}

		docID := ""
		if len(args) == 2 {
			docID = args[1]
		}
		id, err := store.CreateDocument(context.Background(), args[0], docID, props)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var docUpdateCmd = &cobra.Command{
	Use:   "update TYPE ID",
	Short: "Merge a JSON object read from stdin into a document's properties",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		updated, err := readProperties()
		if err != nil {
			return err
		}
		removed, _ := cmd.Flags().GetStringSlice("remove")
		return store.UpdateDocument(context.Background(), args[0], args[1], updated, removed)
	},
}

var docRemoveCmd = &cobra.Command{
	Use:   "remove TYPE ID",
	Short: "Tombstone a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		return store.RemoveDocument(context.Background(), args[0], args[1])
	},
}

var docCountCmd = &cobra.Command{
	Use:   "count TYPE",
	Short: "Count documents of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		activeOnly, _ := cmd.Flags().GetBool("active-only")
		n, err := store.DocumentCount(context.Background(), args[0], activeOnly)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	docUpdateCmd.Flags().StringSlice("remove", nil, "Property names to remove")
	docCountCmd.Flags().Bool("active-only", true, "Exclude tombstoned documents")

	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docCreateCmd)
	docCmd.AddCommand(docUpdateCmd)
	docCmd.AddCommand(docRemoveCmd)
	docCmd.AddCommand(docCountCmd)
}

var assocCmd = &cobra.Command{
	Use:   "assoc",
	Short: "Association operations",
}

var assocLinkCmd = &cobra.Command{
	Use:   "link NAME FROM_ID TO_ID",
	Short: "Add one association item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		item := []mds.AssociationItem{{FromID: args[1], ToID: args[2]}}
		return store.AssociationUpdate(context.Background(), args[0], item, nil)
	},
}

var assocUnlinkCmd = &cobra.Command{
	Use:   "unlink NAME FROM_ID TO_ID",
	Short: "Remove one association item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		item := []mds.AssociationItem{{FromID: args[1], ToID: args[2]}}
		return store.AssociationUpdate(context.Background(), args[0], nil, item)
	},
}

var assocFromCmd = &cobra.Command{
	Use:   "from NAME ID",
	Short: "List toIDs associated from an anchor document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, b, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		total, toIDs, err := store.AssociationFrom(context.Background(), args[0], args[1], 0, 0)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"total": total, "ids": toIDs})
	},
}

func init() {
	assocCmd.AddCommand(assocLinkCmd)
	assocCmd.AddCommand(assocUnlinkCmd)
	assocCmd.AddCommand(assocFromCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read/write the store's info namespace (arbitrary string key/value pairs)",
}

var infoGetCmd = &cobra.Command{
	Use:   "get KEY...",
	Short: "Get one or more info values",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		kv, err := b.InfoGet(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(kv)
	},
}

var infoSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a single info value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		return b.InfoSet(cmd.Context(), map[string]string{args[0]: args[1]})
	},
}

func init() {
	infoCmd.AddCommand(infoGetCmd)
	infoCmd.AddCommand(infoSetCmd)
}

func readProperties() (value.Dictionary, error) {
	var raw map[string]any
	if err := json.NewDecoder(os.Stdin).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stdin: %w", err)
	}
	v, err := value.FromDictionary(raw)
	if err != nil {
		return nil, fmt.Errorf("decode stdin: %w", err)
	}
	return v.Dictionary()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
