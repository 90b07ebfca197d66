package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/calendar"
	"github.com/jakechorley/overlap/pkg/core/model"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// ViewMonthCmd creates the calendar command
func ViewMonthCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Show who can make each day of a month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := app.today().Format("2006-01")
			if len(args) == 1 {
				month = args[0]
			}

			year, mon, err := calendar.ParseMonth(month)
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrValidation, err)
			}

			rec, err := app.openView()
			if err != nil {
				return err
			}

			app.Logger.Debug("calendar command", zap.String("month", month))
			printMonth(cmd.OutOrStdout(), rec, calendar.MonthDates(year, mon))
			return nil
		},
	}
}

// printMonth renders one row per participant and a totals row, one column
// per day
func printMonth(out io.Writer, rec model.EventRecord, dates []string) {
	rec.Normalize()
	if len(dates) == 0 {
		return
	}
	first, _ := calendar.Parse(dates[0])
	fmt.Fprintf(out, "\n%s: %s\n\n", rec.Name, first.Format("January 2006"))

	// Calculate column widths
	maxNameLen := 10
	for _, p := range rec.Participants {
		if len(p.Name) > maxNameLen {
			maxNameLen = len(p.Name)
		}
	}
	nameColWidth := maxNameLen + 2
	dayColWidth := 3

	// Header rows: weekday initial, then day of month
	fmt.Fprintf(out, "%-*s", nameColWidth, "")
	for _, date := range dates {
		day, _ := calendar.Parse(date)
		fmt.Fprintf(out, "%-*s", dayColWidth, day.Format("Mon")[:1])
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-*s", nameColWidth, "")
	for _, date := range dates {
		day, _ := calendar.Parse(date)
		fmt.Fprintf(out, "%-*d", dayColWidth, day.Day())
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, strings.Repeat("-", nameColWidth+dayColWidth*len(dates)))

	for _, p := range rec.Participants {
		fmt.Fprintf(out, "%-*s", nameColWidth, p.Name)
		for _, date := range dates {
			if canMake(rec, p, date) {
				fmt.Fprintf(out, "%s%-*s%s", colorGreen, dayColWidth, "✓", colorReset)
			} else {
				fmt.Fprintf(out, "%s%-*s%s", colorRed, dayColWidth, "✗", colorReset)
			}
		}
		fmt.Fprintln(out)
	}

	total := len(rec.Participants)
	fmt.Fprintf(out, "%-*s", nameColWidth, "Available")
	for _, date := range dates {
		available := aggregator.CountAvailable(rec.Participants, rec.UnavailableDates, rec.AvailableDates, date)
		color := availabilityColor(available, total, colorGreen, colorYellow, colorRed)
		fmt.Fprintf(out, "%s%-*d%s", color, dayColWidth, available, colorReset)
	}
	fmt.Fprintln(out)

	// Legend
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Legend:")
	fmt.Fprintf(out, "  %s✓%s = can make it, %s✗%s = can't\n", colorGreen, colorReset, colorRed, colorReset)
	fmt.Fprintf(out, "  %sN%s = everyone, %sN%s = more than half, %sN%s = half or fewer\n",
		colorGreen, colorReset, colorYellow, colorReset, colorRed, colorReset)
	fmt.Fprintf(out, "  %s%d participants%s\n", colorDim, total, colorReset)
}

// canMake reports whether one participant is available on date
func canMake(rec model.EventRecord, p model.Participant, date string) bool {
	return aggregator.CountAvailable([]model.Participant{p}, rec.UnavailableDates, rec.AvailableDates, date) == 1
}

// availabilityColor picks the colour for a day's available count: full when
// everyone can make it, partial when more than half can, otherwise low
func availabilityColor(available, total int, full, partial, low string) string {
	switch {
	case available == total:
		return full
	case available*2 > total:
		return partial
	default:
		return low
	}
}
