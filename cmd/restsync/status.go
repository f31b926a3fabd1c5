package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/events"
	"github.com/restreviews/restsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store, queue and daemon status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.engine.QueueStats(cmd.Context())
		if err != nil {
			return err
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		p.Title("restsync")
		p.Line("  api           %s", s.client.BaseURL())
		if s.store != nil {
			p.Line("  store path    %s", s.store.Path())
		}

		var online *bool
		if st, err := daemonStatus(cmd.Context(), cfg.Daemon.Port); err == nil {
			online = &st.Online
			p.Line("  daemon        running on port %d (%d feed clients)", cfg.Daemon.Port, st.Clients)
		} else {
			p.Muted("  daemon        not running")
		}
		p.QueueStats(stats, online)
		return nil
	},
}

// daemonStatus asks a running daemon for its status snapshot.
func daemonStatus(ctx context.Context, port int) (*events.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/status", port), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon status: %s", resp.Status)
	}
	var st events.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
