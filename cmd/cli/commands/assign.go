package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reconciler"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// AssignRidersCmd creates the assignRiders command
func AssignRidersCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignRiders <request_id> [rider_id...]",
		Short: "Set the full rider list for a request (no riders unassigns everyone)",
		Long: `Reconcile a request against the given rider IDs. Riders not listed lose their assignment,
new riders are checked for availability and conflicts, and the request status is recomputed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, _ := cmd.Flags().GetStringSlice("override")
			notify, _ := cmd.Flags().GetBool("notify")

			requestID := args[0]
			desired := make([]model.DesiredRider, 0, len(args)-1)
			for _, riderID := range args[1:] {
				desired = append(desired, model.DesiredRider{
					RiderID:  riderID,
					Override: slices.Contains(overrides, riderID),
				})
			}

			app.Logger.Debug("assignRiders command",
				zap.String("request_id", requestID),
				zap.Int("riders", len(desired)),
				zap.Strings("override", overrides),
				zap.String("policy", string(app.Reconciler.Policy())))

			result, err := app.Reconciler.Reconcile(app.Ctx, requestID, desired)
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

	cmd.Flags().StringSlice("override", nil, "Rider IDs to assign without availability or conflict checks")
	cmd.Flags().Bool("notify", false, "Email riders who were added or removed")

	return cmd
}

func printResult(result *reconciler.Result) {
	fmt.Printf("Riders: %s\n\n", displayRiders(result.RidersAssigned))

	if !result.Changed() && len(result.Rejected) == 0 {
		fmt.Printf("No changes.\n\n")
		return
	}
	if len(result.Created) > 0 {
		fmt.Printf("Assigned (%d):\n", len(result.Created))
		for _, a := range result.Created {
			printAssignment(a)
		}
		fmt.Println()
	}
	if len(result.Cancelled) > 0 {
		fmt.Printf("Cancelled (%d):\n", len(result.Cancelled))
		for _, a := range result.Cancelled {
			printAssignment(a)
		}
		fmt.Println()
	}
	if len(result.Updated) > 0 {
		fmt.Printf("Updated (%d):\n", len(result.Updated))
		for _, a := range result.Updated {
			printAssignment(a)
		}
		fmt.Println()
	}
	if len(result.Rejected) > 0 {
		fmt.Printf("⚠️  Not assigned (%d):\n", len(result.Rejected))
		for _, r := range result.Rejected {
			fmt.Printf("  ✗ %s: %s\n", r.RiderID, strings.Join(r.Reasons, "; "))
		}
		fmt.Println()
	}
}

// notifyRiders emails the riders a result touched. Failures are printed, not returned: the change
// is already committed.
func notifyRiders(app *AppContext, result *reconciler.Result) {
	if !result.Applied || (len(result.Created) == 0 && len(result.Cancelled) == 0) {
		return
	}

	notifier, err := app.Notifier()
	if err != nil {
		fmt.Printf("⚠️  Notifications skipped: %v\n\n", err)
		return
	}
	request, err := app.Database.GetRequest(app.Ctx, result.RequestID)
	if err != nil {
		fmt.Printf("⚠️  Notifications skipped: %v\n\n", err)
		return
	}

	sent, err := services.NotifyReconciliation(app.Ctx, app.Database, notifier, app.Logger, request, result)
	for _, n := range sent {
		if n.Sent {
			fmt.Printf("  ✓ notified %s (%s)\n", n.RiderID, n.Channel)
		}
	}
	for _, e := range multierr.Errors(err) {
		fmt.Printf("  ✗ %v\n", e)
	}
	fmt.Println()
}
