package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/config"
	"github.com/restreviews/restsync/internal/daemon"
	"github.com/restreviews/restsync/internal/remote"
	"github.com/restreviews/restsync/internal/store"
	"github.com/restreviews/restsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Refresh the local store from the API
  2. Replay queued reviews and favorites whenever connectivity returns
  3. Serve a live event feed at ws://localhost:<port>/ws
  4. Apply API base URL changes from the config file without a restart
  5. Start a new log file on SIGHUP when log.file is set

Connectivity is read from --connectivity-file (a file holding "online" or
"offline") and from {"type":"connectivity","online":bool} messages sent by
feed clients.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dc := daemon.FromConfig(cfg, logs)
		if cmd.Flags().Changed("port") {
			dc.EventsPort, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("connectivity-file") {
			dc.ConnectivityFile, _ = cmd.Flags().GetString("connectivity-file")
		}
		dc.RefreshInterval, _ = cmd.Flags().GetDuration("refresh-interval")
		if noFeed, _ := cmd.Flags().GetBool("no-feed"); noFeed {
			dc.EventsEnabled = false
		}

		client := remote.New(cfg.API.BaseURL, remote.Options{
			Timeout: cfg.API.Timeout,
			Logger:  logs.New("[remote] "),
		})

		var st *store.Store
		if !store.Disabled(cfg.Store.Path) {
			var err error
			st, err = store.Open(cfg.Store.Path)
			if err != nil {
				logs.New("[store] ").Printf("Warning: %v", err)
			} else {
				st.SetLogger(logs.New("[store] "))
				defer st.Close()
			}
		}

		d, err := daemon.New(client, st, dc)
		if err != nil {
			return err
		}

		loader := config.NewLoader(configPath)
		if _, err := loader.Load(); err == nil && loader.ConfigFile() != "" {
			loader.Watch(d.ApplyConfig, func(err error) {
				logs.New("[config] ").Printf("Ignoring invalid config: %v", err)
			})
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer func() {
			signal.Stop(hup)
			close(hup)
		}()
		go func() {
			for range hup {
				if err := logs.Rotate(); err != nil {
					logs.New("[daemon] ").Printf("Warning: failed to rotate log file: %v", err)
				}
			}
		}()

		p := ui.NewPrinter(cmd.OutOrStdout())
		p.Title("Starting restsync daemon")
		p.Line("   API: %s", client.BaseURL())
		if st != nil {
			p.Line("   Store: %s", st.Path())
		} else {
			p.Muted("   Store: none (network-only, writes cannot be queued)")
		}
		if dc.EventsEnabled {
			p.Line("   Feed: ws://localhost:%d/ws", dc.EventsPort)
		}
		if dc.ConnectivityFile != "" {
			p.Line("   Connectivity: %s", dc.ConnectivityFile)
		}
		p.Line("\nPress Ctrl+C to stop\n")

		if err := d.Start(cmd.Context()); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 8090, "event feed port")
	daemonCmd.Flags().String("connectivity-file", "", "status file holding online or offline")
	daemonCmd.Flags().Duration("refresh-interval", 0, "refresh the store on this interval while online (0 disables)")
	daemonCmd.Flags().Bool("no-feed", false, "do not serve the event feed")

	rootCmd.AddCommand(daemonCmd)
}
