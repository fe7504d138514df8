package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/reporting"
)

// ReportCmd creates the report command
func ReportCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise requests, assignments and rider hours for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			asJSON, _ := cmd.Flags().GetBool("json")

			var from, to time.Time
			var err error
			if fromStr != "" {
				if from, err = parseDate(fromStr, "from"); err != nil {
					return err
				}
			}
			if toStr != "" {
				if to, err = parseDate(toStr, "to"); err != nil {
					return err
				}
			}

			report, err := reporting.Build(app.Ctx, app.Database, from, to)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(report, fromStr, toStr)
			return nil
		},
	}

	cmd.Flags().String("from", "", "First event date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last event date (YYYY-MM-DD)")
	cmd.Flags().Bool("json", false, "Print the report as JSON")

	return cmd
}

func printReport(report *reporting.Report, from, to string) {
	if from == "" {
		from = "start"
	}
	if to == "" {
		to = "now"
	}

	fmt.Printf("\n📊 Dispatch report (%s to %s)\n\n", from, to)
	fmt.Printf("Requests: %d\n", report.Requests)
	statuses := make([]model.RequestStatus, 0, len(report.RequestsByStatus))
	for s := range report.RequestsByStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Printf("  %-12s %d\n", s, report.RequestsByStatus[s])
	}
	if len(report.UnderStaffed) > 0 {
		fmt.Printf("\n⚠️  Under-staffed: %v\n", report.UnderStaffed)
	}

	fmt.Printf("\nRiders (%s hours total):\n", report.TotalHours.StringFixed(2))
	for _, r := range report.Riders {
		fmt.Printf("  %-20s %6s h  %d assigned, %d completed, %d no-show, %d cancelled\n",
			r.RiderName, r.Hours.StringFixed(2), r.Assignments, r.Completed, r.NoShows, r.Cancelled)
	}
	fmt.Println()
}
