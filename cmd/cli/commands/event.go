package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/services"
	"github.com/jakechorley/overlap/pkg/imageproc"
)

// CreateCmd creates the create command
func CreateCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new event and open it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			coverPath, _ := cmd.Flags().GetString("cover")
			mode, _ := cmd.Flags().GetString("mode")

			cover, err := imageproc.ThumbnailFile(coverPath, imageproc.CoverWidth)
			if err != nil {
				return err
			}

			id, err := services.CreateEvent(app.Ctx, app.Session, app.State, app.Logger, services.NewEvent{
				Name:        args[0],
				Description: description,
				CoverImage:  cover,
				Mode:        model.Mode(mode),
			})
			if err != nil {
				return err
			}
			app.Chat = nil

			link, err := services.ShareLink(app.Cfg.ShareBaseURL, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n✓ Event created successfully!\n\n")
			fmt.Fprintf(out, "Event ID:   %s\n", id)
			fmt.Fprintf(out, "Share link: %s\n\n", link)
			return nil
		},
	}

	cmd.Flags().String("description", "", "Event description")
	cmd.Flags().String("cover", "", "Path to a cover image")
	cmd.Flags().String("mode", string(model.ModeBusy), "Your marking mode: busy or free")
	return cmd
}

// OpenCmd creates the open command
func OpenCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <id|link>",
		Short: "Open an event by id or share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := services.OpenEvent(app.Ctx, app.Session, app.State, app.Logger, args[0])
			if err != nil {
				return fmt.Errorf("%s", describe(err))
			}
			app.Chat = nil

			printEvent(cmd.OutOrStdout(), app.Session.EventID(), rec)
			return nil
		},
	}
}

// ShowCmd creates the show command
func ShowCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the open event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.openView()
			if err != nil {
				return err
			}
			printEvent(cmd.OutOrStdout(), app.Session.EventID(), rec)
			return nil
		},
	}
}

// CloseCmd creates the close command
func CloseCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the open event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := services.CloseEvent(app.Ctx, app.Session, app.State, app.Logger); err != nil {
				return err
			}
			app.Chat = nil
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Event closed")
			return nil
		},
	}
}

// DeleteCmd creates the delete command
func DeleteCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete the open event (organiser only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			rec, err := app.openView()
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("this permanently deletes %q for everyone; rerun with --yes to confirm", rec.Name)
			}

			if err := services.DeleteEvent(app.Ctx, app.Session, app.State, app.Logger); err != nil {
				return err
			}
			app.Chat = nil
			app.Logger.Debug("delete command", zap.String("name", rec.Name))

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", rec.Name)
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm deletion")
	return cmd
}

func printEvent(out io.Writer, id string, rec model.EventRecord) {
	fmt.Fprintf(out, "\n%s", rec.Name)
	if id != "" {
		fmt.Fprintf(out, " (%s)", id)
	}
	fmt.Fprintln(out)
	if rec.Description != "" {
		fmt.Fprintf(out, "%s\n", rec.Description)
	}

	fmt.Fprintf(out, "\nParticipants (%d):\n", len(rec.Participants))
	for _, p := range rec.Participants {
		var tags []string
		if rec.IsAdmin(p.ID) {
			tags = append(tags, "organiser")
		}
		tags = append(tags, string(p.EffectiveMode()))
		marked := len(rec.Marks(p.EffectiveMode()).DatesFor(p.ID))
		fmt.Fprintf(out, "  %-20s %-8s %d dates marked [%s]\n", p.Name, p.Color, marked, strings.Join(tags, ", "))
	}
	fmt.Fprintln(out)
}
