package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jakechorley/escort-dispatch/pkg/core/model"
	"github.com/jakechorley/escort-dispatch/pkg/core/services"
)

// AddAvailabilityCmd creates the addAvailability command
func AddAvailabilityCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addAvailability <rider_id> <start> <end>",
		Short: "Declare when a rider is (or is not) available",
		Long: `Declare a window for a rider. Use --date for a single day, or --weekday with --from
(and optionally --until and --every) for a weekly pattern. --unavailable subtracts the window instead.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			weekday, _ := cmd.Flags().GetString("weekday")
			from, _ := cmd.Flags().GetString("from")
			until, _ := cmd.Flags().GetString("until")
			every, _ := cmd.Flags().GetInt("every")
			unavailable, _ := cmd.Flags().GetBool("unavailable")
			notes, _ := cmd.Flags().GetString("notes")

			kind := model.KindAvailable
			if unavailable {
				kind = model.KindUnavailable
			}

			entry, err := services.AddAvailability(app.Ctx, app.Database, app.Logger, services.NewAvailability{
				RiderID:     args[0],
				Date:        date,
				Weekday:     weekday,
				StartDate:   from,
				RepeatUntil: until,
				Interval:    every,
				Start:       args[1],
				End:         args[2],
				Kind:        string(kind),
				Notes:       notes,
			}, app.Now())
			if err != nil {
				return err
			}

			when := model.FormatDate(entry.Date)
			if r := entry.Recurrence; r != nil {
				when = fmt.Sprintf("every %d week(s) on %s from %s", r.EffectiveInterval(), r.Weekday, model.FormatDate(r.StartDate))
				if !r.RepeatUntil.IsZero() {
					when += " until " + model.FormatDate(r.RepeatUntil)
				}
			}
			fmt.Printf("\n✓ %s %s %s-%s, %s (entry %s)\n\n",
				entry.RiderID, strings.ToLower(string(entry.Kind)), entry.Window.Start, entry.Window.End, when, entry.ID)
			return nil
		},
	}

	cmd.Flags().String("date", "", "Single date (YYYY-MM-DD)")
	cmd.Flags().String("weekday", "", "Day of the week for a weekly pattern")
	cmd.Flags().String("from", "", "First date of a weekly pattern (YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Last date of a weekly pattern (YYYY-MM-DD), open-ended when omitted")
	cmd.Flags().Int("every", 1, "Repeat every N weeks")
	cmd.Flags().Bool("unavailable", false, "Declare the window as unavailable")
	cmd.Flags().String("notes", "", "Free-text notes")

	return cmd
}

// ShowAvailabilityCmd creates the showAvailability command
func ShowAvailabilityCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showAvailability <rider_id> <from> [to]",
		Short: "Show a rider's resolved availability for each date in a range",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDate(args[1], "from")
			if err != nil {
				return err
			}
			to := from
			if len(args) > 2 {
				if to, err = parseDate(args[2], "to"); err != nil {
					return err
				}
			}

			days, err := services.ShowAvailability(app.Ctx, app.Resolver, args[0], from, to)
			if err != nil {
				return err
			}

			fmt.Printf("\nAvailability for %s:\n\n", args[0])
			for _, d := range days {
				windows := "unavailable"
				if len(d.Windows) > 0 {
					windows = strings.Join(d.Windows, " ")
				}
				fmt.Printf("  %s %-9s %s\n", d.Date, d.Weekday, windows)
			}
			fmt.Println()
			return nil
		},
	}
}

// CheckConflictsCmd creates the checkConflicts command
func CheckConflictsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "checkConflicts <rider_id> <date> <start> <end>",
		Short: "Check a rider's availability and overlapping assignments for a window",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[1], "date")
			if err != nil {
				return err
			}
			window, err := model.NewWindow(args[2], args[3])
			if err != nil {
				return err
			}

			report, err := services.CheckRider(app.Ctx, app.Resolver, app.Detector, args[0], date, window)
			if err != nil {
				return err
			}

			fmt.Println()
			if report.Available {
				fmt.Printf("✓ %s is available %s-%s on %s\n", report.RiderID, window.Start, window.End, report.Date)
			} else {
				fmt.Printf("✗ %s: %s\n", report.RiderID, report.Reason)
			}
			if len(report.Conflicts) == 0 {
				fmt.Printf("✓ No overlapping assignments\n\n")
				return nil
			}
			fmt.Printf("⚠️  Overlapping assignments (%d):\n", len(report.Conflicts))
			for _, a := range report.Conflicts {
				fmt.Printf("  %s on %s %s-%s (%s)\n", a.ID, a.RequestID, a.Window.Start, a.Window.End, a.Status)
			}
			fmt.Println()
			return nil
		},
	}
}

// ImportFormAvailabilityCmd creates the importFormAvailability command
func ImportFormAvailabilityCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importFormAvailability [form_id]",
		Short: "Mark riders unavailable on the dates they ticked in the availability form",
		Long: `Read the availability Google Form and add a whole-day Unavailable entry for every date a
rider ticked. Respondents are matched to riders by email. Only each rider's latest response counts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formID := app.Cfg.AvailabilityFormID
			if len(args) == 1 {
				formID = args[0]
			}
			if formID == "" {
				return fmt.Errorf("no form ID given and availabilityFormID is not configured")
			}

			var since time.Time
			if s, _ := cmd.Flags().GetString("since"); s != "" {
				d, err := parseDate(s, "since")
				if err != nil {
					return err
				}
				since = d
			}

			client, err := app.FormsClient()
			if err != nil {
				return err
			}

			result, err := services.ImportFormAvailability(app.Ctx, client, app.Database, app.Logger, formID, since, app.Now())
			if result == nil {
				return err
			}

			fmt.Printf("\n✓ Read %d responses, stored %d unavailable dates\n", result.Responses, result.Entries)
			if result.Skipped > 0 {
				fmt.Printf("  Skipped %d past dates\n", result.Skipped)
			}
			if len(result.Unmatched) > 0 {
				fmt.Printf("⚠️  No rider with email: %s\n", strings.Join(result.Unmatched, ", "))
			}
			for _, stale := range result.Stale {
				fmt.Printf("⚠️  %s no longer ticks %s; remove that entry by hand\n", stale.RiderID, model.FormatDate(stale.Date))
			}
			for _, e := range multierr.Errors(err) {
				fmt.Printf("  ✗ %v\n", e)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("since", "", "Only read responses submitted on or after this date (YYYY-MM-DD)")

	return cmd
}
