package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errExit = errors.New("exit")

// hiddenFromSession are root commands that make no sense inside a session
var hiddenFromSession = []string{"interactive", "completion", "help", "serve"}

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (open an event once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands against the open event.
The session keeps the event open, polling it for changes, and keeps the assistant conversation going
until you type 'exit' or 'quit'.

Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\n🚀 Starting interactive session...")
			fmt.Fprintln(out, "Type 'help' for available commands, 'exit' or 'quit' to leave")

			// The open event is polled between commands so remote edits and
			// deletion are picked up
			defer app.stopFollowing()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				app.followOpenEvent(app.Ctx)
				fmt.Fprint(out, prompt(app))

				if !scanner.Scan() {
					break
				}

				err := runLine(cmd.Root(), out, scanner.Text())
				if errors.Is(err, errExit) {
					fmt.Fprintln(out, "👋 Goodbye!")
					return nil
				}
				if err != nil {
					fmt.Fprintf(out, "❌ Error: %v\n\n", err)
				}
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}
			return nil
		},
	}

	return cmd
}

func prompt(app *AppContext) string {
	if rec, ok := app.Session.View(); ok {
		return fmt.Sprintf("[%s] > ", rec.Name)
	}
	return "> "
}

// runLine executes one session line against root's commands. It returns
// errExit when the user asks to leave.
func runLine(root *cobra.Command, out io.Writer, line string) error {
	parts, err := parseCommandLine(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("parsing command: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "exit", "quit":
		return errExit
	case "help":
		printInteractiveHelp(out, root)
		return nil
	}
	if slices.Contains(hiddenFromSession, parts[0]) {
		return fmt.Errorf("%s is not available in a session", parts[0])
	}

	// Find resolves nested subcommands such as "accounts switch <id>"
	targetCmd, cmdArgs, err := root.Find(parts)
	if err != nil || targetCmd == root {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
	}

	// Flags keep their values between runs unless reset
	targetCmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		flag.Value.Set(flag.DefValue)
	})

	// Run RunE directly so PersistentPreRunE does not set the app up again
	if err := targetCmd.ParseFlags(cmdArgs); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	cmdArgs = targetCmd.Flags().Args()

	if targetCmd.Args != nil {
		if err := targetCmd.Args(targetCmd, cmdArgs); err != nil {
			return err
		}
	}

	if targetCmd.RunE != nil {
		return targetCmd.RunE(targetCmd, cmdArgs)
	}
	if targetCmd.Run != nil {
		targetCmd.Run(targetCmd, cmdArgs)
		return nil
	}
	return targetCmd.Help()
}

func printInteractiveHelp(out io.Writer, root *cobra.Command) {
	fmt.Fprintln(out, "\nAvailable commands:")

	cmds := slices.DeleteFunc(slices.Clone(root.Commands()), func(c *cobra.Command) bool {
		return slices.Contains(hiddenFromSession, c.Name())
	})
	slices.SortFunc(cmds, func(a, b *cobra.Command) int { return strings.Compare(a.Name(), b.Name()) })

	for _, c := range cmds {
		fmt.Fprintf(out, "  %-30s %s\n", c.Use, c.Short)
		for _, sub := range c.Commands() {
			fmt.Fprintf(out, "    %-28s %s\n", sub.Use, sub.Short)
		}
	}

	fmt.Fprintln(out, "\n  help                           Show this help message")
	fmt.Fprintln(out, "  exit, quit                     Exit the interactive session")
	fmt.Fprintln(out)
}

// parseCommandLine splits a command line into arguments, respecting quoted strings
// Supports both single and double quotes
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune // 0 if not in quote, '"' or '\'' if in quote
	quoted := false  // the current argument had quotes, so keep it even if empty

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
			quoted = true
		case unicode.IsSpace(r):
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	return args, nil
}
