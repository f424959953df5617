// gamectl is a utility program for inspecting and maintaining the game's
// document store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/bomberhub/internal/config"
	"github.com/jacentio/bomberhub/internal/game"
	"github.com/jacentio/bomberhub/store"
	"github.com/jacentio/bomberhub/store/fsbackend"
)

var cmdRoot = &cobra.Command{
	Use:          "gamectl",
	SilenceUsage: true,
}

var cmdExport = &cobra.Command{
	Use:   "export",
	Short: "Export every collection to a GCS bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		op, err := fsbackend.Export(cmd.Context(), cfg.ProjectID, exportBucket)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), op)
		return nil
	},
}

var exportBucket string

func init() {
	cmdExport.Flags().StringVar(&exportBucket, "bucket", "", "GCS bucket receiving the export")
	_ = cmdExport.MarkFlagRequired("bucket")
}

var cmdSessions = &cobra.Command{
	Use: "sessions [command]",
}

var cmdSessionsList = &cobra.Command{
	Use:   "list",
	Short: "Print every session as a JSON line",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Reset()

		return listSessions(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var cmdSessionsSweep = &cobra.Command{
	Use:   "sweep",
	Short: "Delete inactive sessions and their players",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Reset()

		service := game.NewService(client, discard{}, game.Config{
			SessionTTL: cfg.SessionTTL,
			Logger:     client.Logger(),
		})
		fmt.Fprintf(cmd.OutOrStdout(), "swept %d sessions\n", service.Sweep(cmd.Context()))
		return nil
	},
}

// discard drops events; gamectl has no connected clients.
type discard struct{}

func (discard) Broadcast(string, any) {}

func openClient(ctx context.Context) (*store.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	client, err := store.Init(ctx, cfg.Store(logger), cfg.Opener())
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("while opening store: %w", err)
	}
	return client, cfg, nil
}

func listSessions(ctx context.Context, client *store.Client, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, session := range client.QueryRaw(ctx, store.Scope(store.CollectionSessions), store.OrderBy("dateCreated", store.Asc)) {
		if err := enc.Encode(session); err != nil {
			return fmt.Errorf("while writing session: %w", err)
		}
	}
	return nil
}

func main() {
	cmdRoot.AddCommand(cmdExport, cmdSessions)
	cmdSessions.AddCommand(cmdSessionsList, cmdSessionsSweep)

	if err := cmdRoot.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
