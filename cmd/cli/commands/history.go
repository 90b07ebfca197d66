package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/services"
)

// HistoryCmd creates the history command
func HistoryCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently visited events, or rejoin one with --join <n>",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			join, _ := cmd.Flags().GetString("join")
			out := cmd.OutOrStdout()

			items, err := app.State.History(app.Ctx)
			if err != nil {
				return err
			}

			if join == "" {
				if len(items) == 0 {
					fmt.Fprintln(out, "No recent events.")
					return nil
				}
				fmt.Fprintln(out, "Recent events:")
				for i, item := range items {
					fmt.Fprintf(out, "  %2d. %-30s %s  (%s)\n", i+1, item.Name, item.ID, item.LastVisited.Format("Jan 02 15:04"))
				}
				return nil
			}

			// --join takes a list position or an event id
			eventID := join
			if n, err := strconv.Atoi(join); err == nil {
				if n < 1 || n > len(items) {
					return fmt.Errorf("%w: no history entry %d", model.ErrValidation, n)
				}
				eventID = items[n-1].ID
			}

			result, err := services.JoinFromHistory(app.Ctx, app.Session, app.State, app.Logger, eventID)
			if err != nil {
				return err
			}
			app.Chat = nil

			fmt.Fprintf(out, "✓ %s\n", result.Message)
			return nil
		},
	}

	cmd.Flags().String("join", "", "Rejoin the event at this history position (or with this id)")
	return cmd
}
