package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// CreateRequestCmd creates the createRequest command
func CreateRequestCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createRequest <date> <start> <end>",
		Short: "Create an escort request (date YYYY-MM-DD, times HH:MM)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			riders, _ := cmd.Flags().GetInt("riders")
			requester, _ := cmd.Flags().GetString("requester")
			pickup, _ := cmd.Flags().GetString("pickup")
			dropoff, _ := cmd.Flags().GetString("dropoff")
			notes, _ := cmd.Flags().GetString("notes")

			request, err := services.CreateRequest(app.Ctx, app.Database, app.RequestIDs, app.Logger, services.NewRequest{
				EventDate:     args[0],
				Start:         args[1],
				End:           args[2],
				RidersNeeded:  riders,
				RequesterName: requester,
				Pickup:        pickup,
				Dropoff:       dropoff,
				Notes:         notes,
			}, app.Now())
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Request created\n\n")
			printRequest(request)
			return nil
		},
	}

	cmd.Flags().Int("riders", 1, "Number of riders needed")
	cmd.Flags().String("requester", "", "Name of the person requesting the escort")
	cmd.Flags().String("pickup", "", "Pickup location")
	cmd.Flags().String("dropoff", "", "Dropoff location")
	cmd.Flags().String("notes", "", "Free-text notes")

	return cmd
}

// NextRequestIDCmd creates the nextRequestId command
func NextRequestIDCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "nextRequestId",
		Short: "Reserve and print the next request ID for the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.RequestIDs.Next(app.Ctx, app.Now())
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

// ShowRequestCmd creates the showRequest command
func ShowRequestCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showRequest <request_id>",
		Short: "Show a request and all of its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := services.GetRequestDetail(app.Ctx, app.Database, args[0])
			if err != nil {
				return err
			}

			fmt.Println()
			printRequest(detail.Request)
			fmt.Printf("\nAssignments (%d):\n", len(detail.Assignments))
			for _, a := range detail.Assignments {
				printAssignment(a)
			}
			fmt.Println()
			return nil
		},
	}
}

// CompleteRequestCmd creates the completeRequest command
func CompleteRequestCmd(app *AppContext) *cobra.Command {
	return terminalRequestCmd(app, "completeRequest", "Mark a request completed (active assignments complete too)", model.RequestCompleted)
}

// CancelRequestCmd creates the cancelRequest command
func CancelRequestCmd(app *AppContext) *cobra.Command {
	return terminalRequestCmd(app, "cancelRequest", "Cancel a request (active assignments are cancelled too)", model.RequestCancelled)
}

func terminalRequestCmd(app *AppContext, name, short string, status model.RequestStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <request_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetBool("keep-assignments")
			notify, _ := cmd.Flags().GetBool("notify")

			app.Logger.Debug(name+" command",
				zap.String("request_id", args[0]),
				zap.Bool("keep_assignments", keep))

			result, err := app.Reconciler.TransitionRequest(app.Ctx, args[0], status, !keep)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Request %s: %s → %s\n", result.RequestID, result.PreviousStatus, result.Status)
			printResult(result)

			if notify {
				notifyRiders(app, result)
			}
			return nil
		},
	}

	cmd.Flags().Bool("keep-assignments", false, "Leave the request's assignments untouched")
	cmd.Flags().Bool("notify", false, "Email riders whose assignments were cancelled")

	return cmd
}

// UpdateAssignmentCmd creates the updateAssignment command
func UpdateAssignmentCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "updateAssignment <assignment_id> <status>",
		Short: "Move an assignment to Confirmed, In Progress, Completed, Cancelled or No Show",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := model.ParseAssignmentStatus(args[1])
			if err != nil {
				return err
			}

			result, err := app.Reconciler.TransitionAssignment(app.Ctx, args[0], status)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Assignment %s is now %s\n", args[0], status)
			fmt.Printf("Request %s: %s (%s)\n\n", result.RequestID, result.Status, displayRiders(result.RidersAssigned))
			return nil
		},
	}
}

func printRequest(r model.Request) {
	fmt.Printf("Request ID:    %s\n", r.ID)
	fmt.Printf("Date:          %s\n", r.EventDate.Format("Mon Jan 02 2006"))
	fmt.Printf("Time:          %s-%s\n", r.Window.Start, r.Window.End)
	fmt.Printf("Riders needed: %d\n", r.RidersNeeded)
	fmt.Printf("Status:        %s\n", r.Status)
	fmt.Printf("Riders:        %s\n", displayRiders(r.RidersAssigned))
	if r.RequesterName != "" {
		fmt.Printf("Requester:     %s\n", r.RequesterName)
	}
	if r.Pickup != "" || r.Dropoff != "" {
		fmt.Printf("Route:         %s → %s\n", r.Pickup, r.Dropoff)
	}
	if r.Notes != "" {
		fmt.Printf("Notes:         %s\n", r.Notes)
	}
}

func printAssignment(a model.Assignment) {
	name := a.RiderName
	if name == "" {
		name = a.RiderID
	}
	line := fmt.Sprintf("  %s  %-20s %s", a.ID, name, a.Status)
	if a.Notes != "" {
		line += "  (" + a.Notes + ")"
	}
	fmt.Println(line)
}

func displayRiders(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
