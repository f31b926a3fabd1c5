package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/schema"
	"github.com/restreviews/restsync/internal/ui"
)

var reviewsCmd = &cobra.Command{
	Use:     "reviews",
	GroupID: "browse",
	Short:   "List and write reviews",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list <restaurant-id>",
	Short: "List a restaurant's reviews",
	Args:  cobra.ExactArgs(1),
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

		reviews, err := s.engine.FetchReviewsByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).Reviews(reviews, nil)
		return nil
	},
}

var reviewsAddCmd = &cobra.Command{
	Use:   "add <restaurant-id>",
	Short: "Write a review",
	Long: `Post a review for a restaurant.

When the API cannot be reached the review is queued in the local store and
posted on the next replay.

Example usage:
  restsync reviews add 3 --name Ana --rating 5 --comments "Great dumplings"
  restsync reviews add 3 --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		rating, _ := cmd.Flags().GetInt("rating")
		comments, _ := cmd.Flags().GetString("comments")

		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if err := reviewForm(&name, &rating, &comments).RunWithContext(cmd.Context()); err != nil {
				return err
			}
		}

		s, err := openSession(nil)
		if err != nil {
			return err
		}
		defer s.Close()

		outcome := s.engine.AddReview(cmd.Context(), schema.NewDraftReview(id, name, rating, comments))
		ui.Outcome(ui.NewPrinter(cmd.OutOrStdout()), outcome)
		return exitStatus(outcome.Kind)
	},
}

func reviewForm(name *string, rating *int, comments *string) *huh.Form {
	stars := make([]huh.Option[int], 0, 5)
	for r := 5; r >= 1; r-- {
		stars = append(stars, huh.NewOption(ui.Stars(r), r))
	}
	if *rating < 1 || *rating > 5 {
		*rating = 5
	}

	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Your name").Value(name).Validate(required("name")),
			huh.NewSelect[int]().Title("Rating").Options(stars...).Value(rating),
			huh.NewText().Title("Comments").Value(comments).Validate(required("comments")),
		),
	)
}

func init() {
	reviewsAddCmd.Flags().String("name", "", "reviewer name")
	reviewsAddCmd.Flags().Int("rating", 0, "rating from 1 to 5")
	reviewsAddCmd.Flags().String("comments", "", "review text")
	reviewsAddCmd.Flags().BoolP("interactive", "i", false, "compose the review in a form")

	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsAddCmd)
	rootCmd.AddCommand(reviewsCmd)
}
