package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/allocator"
	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// SuggestRidersCmd creates the suggestRiders command
func SuggestRidersCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestRiders <request_id>",
		Short: "Rank riders for a request by availability, workload and spacing",
		Long: `List the riders who could take a request, best first. Riders who are unavailable, inactive
or double-booked are listed separately with the reason. With --assign the top riders are added
to the request until it is fully staffed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			assign, _ := cmd.Flags().GetBool("assign")
			notify, _ := cmd.Flags().GetBool("notify")
			showExcluded, _ := cmd.Flags().GetBool("excluded")

			app.Logger.Debug("suggestRiders command",
				zap.String("request_id", args[0]),
				zap.Int("limit", limit),
				zap.Bool("assign", assign))

			request, outcome, err := services.SuggestRiders(app.Ctx, app.Database, app.Resolver, app.Criteria, app.Logger, args[0], limit)
			if err != nil {
				return err
			}

			printRequest(request)
			printSuggestions(outcome, showExcluded)

			if !assign {
				return nil
			}
			if outcome.Needed == 0 {
				fmt.Printf("Request is already fully staffed.\n\n")
				return nil
			}

			desired, err := staffFromSuggestions(app, request, outcome)
			if err != nil {
				return err
			}
			result, err := app.Reconciler.Reconcile(app.Ctx, request.ID, desired)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Request %s reconciled: %s → %s\n", result.RequestID, result.PreviousStatus, result.Status)
			printResult(result)
			if notify {
				notifyRiders(app, result)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 10, "Maximum number of riders to list (0 lists everyone)")
	cmd.Flags().Bool("assign", false, "Assign the top riders until the request is fully staffed")
	cmd.Flags().Bool("notify", false, "Email riders who were added (with --assign)")
	cmd.Flags().Bool("excluded", false, "Also list riders who cannot take the request")

	return cmd
}

func printSuggestions(outcome *allocator.RankOutcome, showExcluded bool) {
	fmt.Printf("Riders still needed: %d\n\n", outcome.Needed)

	if len(outcome.Ranked) == 0 {
		fmt.Printf("No riders are free for this request.\n\n")
	} else {
		fmt.Printf("Suggested (%d):\n", len(outcome.Ranked))
		for i, c := range outcome.Ranked {
			fmt.Printf("  %2d. %-24s %-12s score %.2f\n", i+1, c.Name(), c.Rider.ID, c.Score)
		}
		fmt.Println()
	}

	if outcome.Shortfall > 0 {
		fmt.Printf("⚠️  Short by %d rider(s)\n\n", outcome.Shortfall)
	}

	if showExcluded && len(outcome.Excluded) > 0 {
		fmt.Printf("Excluded (%d):\n", len(outcome.Excluded))
		for _, c := range outcome.Excluded {
			fmt.Printf("  ✗ %s: %s\n", c.Name(), strings.Join(c.Excluded, "; "))
		}
		fmt.Println()
	}
}

// staffFromSuggestions keeps the request's current riders and adds the best suggestions up to the
// number still needed
func staffFromSuggestions(app *AppContext, request model.Request, outcome *allocator.RankOutcome) ([]model.DesiredRider, error) {
	current, err := app.Database.GetAssignmentsForRequest(app.Ctx, request.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	var desired []model.DesiredRider
	for _, a := range current {
		if a.IsActive() {
			desired = append(desired, model.DesiredRider{RiderID: a.RiderID, RiderName: a.RiderName})
		}
	}
	for _, c := range outcome.Ranked[:min(outcome.Needed, len(outcome.Ranked))] {
		desired = append(desired, model.DesiredRider{RiderID: c.Rider.ID, RiderName: c.Rider.Name})
	}
	return desired, nil
}
