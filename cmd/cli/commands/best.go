package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/overlap/pkg/core/aggregator"
)

// BestCmd creates the best command
func BestCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "best",
		Short: "List the best date ranges for the open event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			out := cmd.OutOrStdout()

			rec, groups, err := app.bestDates()
			if err != nil {
				return err
			}
			if len(rec.Participants) == 0 {
				fmt.Fprintln(out, "Nobody has joined yet.")
				return nil
			}

			fmt.Fprintf(out, "\nBest dates for %s (next %d days)\n\n", rec.Name, app.Cfg.HorizonDays)
			for i, g := range aggregator.Top(groups, limit) {
				color := availabilityColor(g.AvailableCount, g.TotalParticipants, colorGreen, colorYellow, colorRed)
				fmt.Fprintf(out, "  %2d. %s%s%s\n", i+1, color, aggregator.Summary(g), colorReset)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().Int("limit", 10, "How many ranges to show")
	return cmd
}
