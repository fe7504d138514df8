package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// ListRidersCmd creates the listRiders command
func ListRidersCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listRiders",
		Short: "List riders in the rider directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromRoster, _ := cmd.Flags().GetBool("roster")

			var riders []model.Rider
			var err error
			if fromRoster {
				client, cerr := app.SheetsClient()
				if cerr != nil {
					return cerr
				}
				riders, err = client.ListRiders(app.Cfg.RidersSheetID, app.Cfg.RidersTab)
			} else {
				riders, err = app.Database.ListRiders(app.Ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list riders: %w", err)
			}

			fmt.Printf("\nFound %d riders:\n\n", len(riders))
			for _, r := range riders {
				contact := r.Email
				if r.Phone != "" {
					contact += " " + r.Phone
				}
				fmt.Printf("- %s (%s) - %s - %s\n", r.Name, r.ID, r.Status, contact)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().Bool("roster", false, "Read the roster sheet instead of the rider directory")

	return cmd
}

// ImportRidersCmd creates the importRiders command
func ImportRidersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "importRiders",
		Short: "Copy the rider roster sheet into the rider directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Cfg.RidersSheetID == "" {
				return fmt.Errorf("ridersSheetID is not configured")
			}
			client, err := app.SheetsClient()
			if err != nil {
				return err
			}

			result, err := services.ImportRiders(app.Ctx, client, app.Database, app.Logger, app.Cfg.RidersSheetID, app.Cfg.RidersTab)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Imported %d riders (%d active)\n", result.Imported, result.Active)
			if len(result.Skipped) > 0 {
				fmt.Printf("⚠️  Skipped %d invalid rows: %v\n", len(result.Skipped), result.Skipped)
			}
			fmt.Println()
			return nil
		},
	}
}
