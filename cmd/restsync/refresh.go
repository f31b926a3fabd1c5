package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/ui"
)

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	GroupID: "sync",
	Short:   "Refresh the local store from the API",
	Long: `Fetch every restaurant and every restaurant's reviews and write them to
the local store. Rows the server no longer returns are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		p := ui.NewPrinter(cmd.OutOrStdout())
		start := time.Now()
		if err := s.engine.UpdateDB(cmd.Context()); err != nil {
			return err
		}

		restaurants, err := s.engine.FetchRestaurants(cmd.Context())
		if err != nil {
			return err
		}
		p.Line("Refreshed %d restaurants in %v", len(restaurants), time.Since(start).Round(time.Millisecond))
		if !s.engine.StoreAvailable() {
			p.Muted("no local store: nothing was cached")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
