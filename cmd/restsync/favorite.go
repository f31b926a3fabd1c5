package main

import (
	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/ui"
)

var favoriteCmd = &cobra.Command{
	Use:     "favorite",
	GroupID: "write",
	Short:   "Manage favorite restaurants",
}

var favoriteToggleCmd = &cobra.Command{
	Use:   "toggle <restaurant-id>",
	Short: "Flip a restaurant's favorite state",
	Long: `Flip a restaurant's favorite state.

--current is the state shown before the toggle; the API is sent its inverse.
When it defaults, the cached restaurant's state is used. Offline toggles are
queued and saved on the next replay.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		current, _ := cmd.Flags().GetBool("current")
		if !cmd.Flags().Changed("current") {
			r, err := s.engine.FetchRestaurantByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			current = bool(r.IsFavorite)
		}

		outcome := s.engine.ToggleFavorite(cmd.Context(), id, current)
		p := ui.NewPrinter(cmd.OutOrStdout())
		ui.Outcome(p, outcome)
		if outcome.Kind == engine.KindOK || outcome.Kind == engine.KindQueued {
			p.Muted("restaurant %d is now %s", id, outcome.Value)
		}
		return exitStatus(outcome.Kind)
	},
}

func init() {
	favoriteToggleCmd.Flags().Bool("current", false, "favorite state before the toggle")

	favoriteCmd.AddCommand(favoriteToggleCmd)
	rootCmd.AddCommand(favoriteCmd)
}
