package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/services"
	"github.com/jakechorley/overlap/pkg/imageproc"
)

// JoinCmd creates the join command
func JoinCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join [name]",
		Short: "Join the open event, defaulting to your logged in name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			avatarPath, _ := cmd.Flags().GetString("avatar")
			mode, _ := cmd.Flags().GetString("mode")

			if _, err := app.openView(); err != nil {
				return err
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				identity, ok, err := app.State.Identity(app.Ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: give a name or log in first", model.ErrValidation)
				}
				name = identity.Name
			}

			avatar, err := imageproc.ThumbnailFile(avatarPath, imageproc.AvatarWidth)
			if err != nil {
				return err
			}

			result, err := services.JoinEvent(app.Ctx, app.Session, app.State, app.Logger, services.JoinRequest{
				Name:   name,
				Avatar: avatar,
				Mode:   model.Mode(mode),
			})
			if err != nil {
				return fmt.Errorf("%s", describe(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", result.Message)
			return nil
		},
	}

	cmd.Flags().String("avatar", "", "Path to an image to use as your avatar")
	cmd.Flags().String("mode", string(model.ModeBusy), "Marking mode: busy (mark dates you can't make) or free (mark dates you can)")
	return cmd
}

// LeaveCmd creates the leave command
func LeaveCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the open event, removing all your marks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.openView()
			if err != nil {
				return err
			}
			if err := services.LeaveEvent(app.Ctx, app.Session, app.State, app.Logger); err != nil {
				return fmt.Errorf("%s", describe(err))
			}
			app.Chat = nil

			fmt.Fprintf(cmd.OutOrStdout(), "✓ You left %s\n", rec.Name)
			return nil
		},
	}
}

// ToggleCmd creates the toggle command
func ToggleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <date>...",
		Short: "Toggle your mark on one or more dates (YYYY-MM-DD)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, date := range args {
				marked, err := services.ToggleDate(app.Ctx, app.Session, app.State, app.Logger, date)
				if err != nil {
					return fmt.Errorf("%s: %s", date, describe(err))
				}
				state := "unmarked"
				if marked {
					state = "marked"
				}
				fmt.Fprintf(out, "✓ %s %s\n", date, state)
			}
			return nil
		},
	}
}

// MonthCmd creates the month command
func MonthCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "month <YYYY-MM> <fill|clear>",
		Short: "Mark or unmark every day of a month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := services.SetMonthStatus(app.Ctx, app.Session, app.State, app.Logger, args[0], services.MarkAction(args[1]))
			if err != nil {
				return fmt.Errorf("%s", describe(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d days %s\n", args[0], len(dates), pastTense(services.MarkAction(args[1])))
			return nil
		},
	}
}

// RecurCmd creates the recur command
func RecurCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recur [rrule]",
		Short: "Mark or unmark dates matching a recurrence rule, e.g. FREQ=WEEKLY;BYDAY=SA,SU",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			saved, _ := cmd.Flags().GetBool("saved")
			out := cmd.OutOrStdout()

			type rule struct{ rrule, action string }
			var rules []rule
			switch {
			case saved:
				for _, mark := range app.Cfg.RecurringMarks {
					rules = append(rules, rule{mark.RRule, mark.Action})
				}
				if len(rules) == 0 {
					return fmt.Errorf("%w: no recurringMarks in the config file", model.ErrValidation)
				}
			case len(args) == 1:
				rules = append(rules, rule{args[0], action})
			default:
				return fmt.Errorf("%w: give a rule or use --saved", model.ErrValidation)
			}

			for _, r := range rules {
				app.Logger.Debug("recur command", zap.String("rrule", r.rrule), zap.String("action", r.action))
				dates, err := services.ApplyRecurringMarks(app.Ctx, app.Session, app.State, app.Logger, r.rrule, services.MarkAction(r.action), app.today(), app.Cfg.HorizonDays)
				if err != nil {
					return fmt.Errorf("%s: %s", r.rrule, describe(err))
				}
				fmt.Fprintf(out, "✓ %s: %d days %s\n", r.rrule, len(dates), pastTense(services.MarkAction(r.action)))
			}
			return nil
		},
	}

	cmd.Flags().String("action", string(services.ActionFill), "fill or clear")
	cmd.Flags().Bool("saved", false, "Apply the recurringMarks from the config file")
	return cmd
}

func pastTense(action services.MarkAction) string {
	if action == services.ActionClear {
		return "cleared"
	}
	return "marked"
}
