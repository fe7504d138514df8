package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// PublishBoardCmd creates the publishBoard command
func PublishBoardCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publishBoard <from> <to>",
		Short: "Publish the requests between two dates to the dispatch board sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Cfg.BoardSheetID == "" {
				return fmt.Errorf("boardSheetID is not configured")
			}
			from, err := parseDate(args[0], "from")
			if err != nil {
				return err
			}
			to, err := parseDate(args[1], "to")
			if err != nil {
				return err
			}

			client, err := app.SheetsClient()
			if err != nil {
				return err
			}

			tab, err := services.PublishBoard(app.Ctx, app.Database, client, app.Logger, app.Cfg.BoardSheetID, from, to)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Board published to tab %q\n\n", tab)
			return nil
		},
	}
}
