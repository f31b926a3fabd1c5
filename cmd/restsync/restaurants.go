package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/ui"
)

var restaurantsCmd = &cobra.Command{
	Use:     "restaurants",
	GroupID: "browse",
	Short:   "List and show restaurants",
}

var restaurantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List restaurants, optionally filtered",
	Long: `List restaurants from the local cache, fetching from the API on a miss.

Filters match exactly. "all" (the default) disables a filter.

Example usage:
  restsync restaurants list
  restsync restaurants list --cuisine Asian
  restsync restaurants list --cuisine Pizza --neighborhood Brooklyn`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cuisine, _ := cmd.Flags().GetString("cuisine")
		neighborhood, _ := cmd.Flags().GetString("neighborhood")

		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		restaurants, err := s.engine.FetchRestaurantByCuisineAndNeighborhood(cmd.Context(), cuisine, neighborhood)
		if err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).Restaurants(restaurants)
		return nil
	},
}

var restaurantsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a restaurant with its reviews",
	Long: `Show one restaurant and its reviews.

Queued reviews are replayed first and the restaurant's reviews refreshed,
so the page reflects the server when it is reachable. Reviews still waiting
in the queue are listed as pending.`,
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

		page, err := s.engine.LoadRestaurantPage(cmd.Context(), id)
		if err != nil {
			if engine.IsNotFound(err) {
				return fmt.Errorf("no restaurant with id %d", id)
			}
			return err
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if page.Replay.Value.Attempted > 0 {
			p.Drain("reviews", page.Replay)
		}
		p.Restaurant(page.Restaurant)
		p.Line("")
		p.Title("Reviews")
		p.Reviews(page.Reviews, page.Pending)
		return nil
	},
}

var neighborhoodsCmd = &cobra.Command{
	Use:     "neighborhoods",
	GroupID: "browse",
	Short:   "List neighborhoods",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listNames(cmd, (*engine.Engine).FetchNeighborhoods)
	},
}

var cuisinesCmd = &cobra.Command{
	Use:     "cuisines",
	GroupID: "browse",
	Short:   "List cuisines",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listNames(cmd, (*engine.Engine).FetchCuisines)
	},
}

func listNames(cmd *cobra.Command, fetch func(*engine.Engine, context.Context) ([]string, error)) error {
	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := fetch(s.engine, cmd.Context())
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid restaurant id %q", s)
	}
	return id, nil
}

func init() {
	restaurantsListCmd.Flags().String("cuisine", engine.AllFilter, "cuisine to match")
	restaurantsListCmd.Flags().String("neighborhood", engine.AllFilter, "neighborhood to match")

	restaurantsCmd.AddCommand(restaurantsListCmd)
	restaurantsCmd.AddCommand(restaurantsShowCmd)
	rootCmd.AddCommand(restaurantsCmd)
	rootCmd.AddCommand(neighborhoodsCmd)
	rootCmd.AddCommand(cuisinesCmd)
}
