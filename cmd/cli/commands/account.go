package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/imageproc"
)

// LoginCmd creates the login command
func LoginCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <name>",
		Short: "Log in as a named participant on this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			avatarPath, _ := cmd.Flags().GetString("avatar")

			avatar, err := imageproc.ThumbnailFile(avatarPath, imageproc.AvatarWidth)
			if err != nil {
				return err
			}

			identity, err := app.State.Login(app.Ctx, args[0], avatar)
			if err != nil {
				return err
			}
			app.Logger.Debug("login command", zap.String("id", identity.ID))

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s (%s)\n", identity.Name, identity.ID)
			return nil
		},
	}

	cmd.Flags().String("avatar", "", "Path to an image to use as your avatar")
	return cmd
}

// LogoutCmd creates the logout command
func LogoutCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out; saved accounts are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.State.Logout(app.Ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

// AccountsCmd creates the accounts command and its subcommands
func AccountsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List, switch or remove the accounts saved on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			accounts, err := app.State.Accounts(app.Ctx)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No saved accounts. Use `login <name>` to create one.")
				return nil
			}

			current, _, err := app.State.Identity(app.Ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Saved accounts:")
			for _, account := range accounts {
				marker := " "
				if account.ID == current.ID {
					marker = "*"
				}
				fmt.Fprintf(out, "  %s %-20s %s\n", marker, account.Name, account.ID)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "switch <id>",
		Short: "Switch to a saved account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := app.State.SwitchAccount(app.Ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Switched to %s\n", identity.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Forget a saved account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.State.RemoveAccount(app.Ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Account removed")
			return nil
		},
	})

	return cmd
}
