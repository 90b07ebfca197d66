package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/model"
)

// WatchCmd creates the watch command
func WatchCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the open event live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			rec, err := app.openView()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			last := watchSummary(rec, app)
			fmt.Fprintf(out, "Watching %s, press Ctrl+C to stop\n%s\n", rec.Name, last)

			app.setWatcher(func(rec model.EventRecord) {
				summary := watchSummary(rec, app)
				if summary == last {
					return
				}
				last = summary
				fmt.Fprintf(out, "\n[%s] %s\n", app.today().Format("15:04:05"), summary)
			})
			defer app.setWatcher(nil)

			app.Logger.Debug("watch command", zap.Duration("interval", app.Cfg.PollInterval))
			app.Session.StartPolling(ctx, app.Cfg.PollInterval)

			select {
			case <-ctx.Done():
				app.Session.StopPolling()
				fmt.Fprintln(out, "\nStopped watching.")
			case <-app.Session.Done():
				// Polling only ends by itself when the event has gone
				fmt.Fprintln(out, "Stopped watching: the event is no longer available.")
			}
			return nil
		},
	}
}

// watchSummary condenses a view into the lines shown when something changes
func watchSummary(rec model.EventRecord, app *AppContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Participants (%d): %s", len(rec.Participants), strings.Join(rec.ParticipantNames(), ", "))

	groups := aggregator.Top(aggregator.BestDates(rec, app.today(), app.Cfg.HorizonDays), 3)
	if len(groups) > 0 {
		b.WriteString("\nBest dates:")
		for _, g := range groups {
			fmt.Fprintf(&b, "\n  %s", aggregator.Summary(g))
		}
	}
	return b.String()
}
