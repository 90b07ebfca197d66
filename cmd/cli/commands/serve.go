package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jakechorley/overlap/pkg/web"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve events as JSON over HTTP for share links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("listen")
			if addr == "" {
				addr = app.Cfg.Listen
			}

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := web.NewServer(app.Store, app.Logger, app.Cfg.HorizonDays)
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("listen", "", "Address to listen on (defaults to the config's listen)")
	return cmd
}
