package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and replay queued writes",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List queued reviews and favorites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		stats, err := s.engine.QueueStats(ctx)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		p.QueueStats(stats, nil)
		if !stats.StoreAvailable {
			return nil
		}

		reviews, err := s.engine.PendingReviews(ctx)
		if err != nil {
			return err
		}
		for _, d := range reviews {
			p.Muted("  review    restaurant %-3d %s %s", d.RestaurantID, ui.Stars(d.Rating), d.Name)
		}

		favorites, err := s.engine.PendingFavorites(ctx)
		if err != nil {
			return err
		}
		for _, f := range favorites {
			p.Muted("  favorite  restaurant %-3d set to %s", f.ID, (!f.IsFavorite).WireValue())
		}
		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued writes now",
	Long: `Replay both queues against the API: reviews first, then favorites.

Under the confirmed replay policy entries that fail again stay queued.
Under the lossy policy they are dropped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.engine.StoreAvailable() {
			return fmt.Errorf("no local store, nothing can be queued")
		}

		res := s.engine.HandleOnline(cmd.Context(), 0)
		p := ui.NewPrinter(cmd.OutOrStdout())
		p.Drain("reviews", res.Reviews)
		p.Drain("favorites", res.Favorites)

		if res.Reviews.Kind == engine.KindFailed || res.Favorites.Kind == engine.KindFailed {
			return errReported
		}
		return nil
	},
}

func init() {
	queueStatusCmd.Flags().Bool("json", false, "print counts as JSON")

	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}
