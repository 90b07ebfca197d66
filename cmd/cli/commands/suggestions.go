package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/clients/assistant"
	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/services"
)

// AskCmd creates the ask command
func AskCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant about the best dates for the open event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, groups, err := app.bestDates()
			if err != nil {
				return err
			}

			question := strings.Join(args, " ")
			app.Chat = append(app.Chat, assistant.Turn{Role: assistant.RoleUser, Text: question})

			reply := services.Ask(app.Ctx, app.completer(), app.Logger, rec, groups, app.Chat)
			app.Chat = append(app.Chat, assistant.Turn{Role: assistant.RoleModel, Text: reply})

			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", reply)
			return nil
		},
	}
}

// ExportICSCmd creates the export-ics command
func ExportICSCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-ics <file>",
		Short: "Write the best date ranges to an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			rec, groups, err := app.bestDates()
			if err != nil {
				return err
			}

			ics, err := services.ExportCalendar(rec, app.Session.EventID(), groups, limit, app.today())
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], []byte(ics), 0644); err != nil {
				return fmt.Errorf("failed to write calendar file: %w", err)
			}

			app.Logger.Debug("export-ics command", zap.String("file", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d suggestions to %s\n", len(aggregator.Top(groups, limit)), args[0])
			return nil
		},
	}

	cmd.Flags().Int("limit", services.PromptGroups, "How many ranges to export")
	return cmd
}

// PublishCmd creates the publish command
func PublishCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Append the best date ranges to the configured Google Sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			rec, groups, err := app.bestDates()
			if err != nil {
				return err
			}
			if app.SheetsClient == nil {
				if err := app.googleClients(); err != nil {
					return err
				}
			}

			n, err := services.PublishSuggestions(app.Ctx, app.SheetsClient, app.Logger, rec, groups,
				app.Cfg.SuggestionsSheetID, app.Cfg.SuggestionsTab, limit, app.today())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Published %d suggestions to the %q tab\n", n, app.Cfg.SuggestionsTab)
			return nil
		},
	}

	cmd.Flags().Int("limit", services.PromptGroups, "How many ranges to publish")
	return cmd
}

// InviteCmd creates the invite command
func InviteCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite <email>...",
		Short: "Email the share link and best dates to people",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attach, _ := cmd.Flags().GetBool("ics")

			rec, groups, err := app.bestDates()
			if err != nil {
				return err
			}

			link, err := services.ShareLink(app.Cfg.ShareBaseURL, app.Session.EventID())
			if err != nil {
				return err
			}
			invite := services.Invite{Link: link, Recipients: args}
			if attach {
				invite.Calendar, err = services.ExportCalendar(rec, app.Session.EventID(), groups, services.PromptGroups, app.today())
				if err != nil {
					return err
				}
			}

			if app.GmailClient == nil {
				if err := app.googleClients(); err != nil {
					return err
				}
			}

			sent, err := services.InviteByEmail(app.Ctx, app.GmailClient, app.Logger, rec, groups, invite)
			if err != nil {
				if sent > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "⚠️  Sent %d of %d invites before failing\n", sent, len(args))
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Sent %d invites\n", sent)
			return nil
		},
	}

	cmd.Flags().Bool("ics", true, "Attach the best dates as an .ics file")
	return cmd
}
