// Command restsync is an offline-first client for the restaurant review API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/config"
	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/logging"
)

var (
	configPath string
	apiURL     string
	storePath  string
	quiet      bool

	// Set by the root PersistentPreRunE.
	cfg  config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "restsync",
	Short: "Offline-first restaurant review client",
	Long: `restsync reads restaurants and reviews through a local cache and keeps
working without a network connection.

Reviews and favorites written while offline are queued in the local store
and replayed when connectivity returns. Run 'restsync daemon' to replay
automatically, or 'restsync queue drain' to replay by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if apiURL != "" {
			loaded.API.BaseURL = apiURL
		}
		if storePath != "" {
			loaded.Store.Path = storePath
		}
		if quiet {
			loaded.Log.Quiet = true
		}
		cfg = loaded

		logs, err = logging.NewFactory(cfg.LogOptions())
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs == nil {
			return nil
		}
		return logs.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "browse", Title: "Browsing:"},
		&cobra.Group{ID: "write", Title: "Writing:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.restsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "restaurant API base URL")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", `local store path, or "none" to run network-only`)
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress log output on stderr")
}

// errReported makes the command exit non-zero after it has already
// printed the failure.
var errReported = errors.New("failure already reported")

// exitStatus maps a write outcome to the command result. Queued writes
// succeed: they will be replayed.
func exitStatus(k engine.Kind) error {
	if k == engine.KindFailed || k == engine.KindUnrecoverable {
		return errReported
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
