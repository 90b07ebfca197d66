package commands

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/overlap/pkg/core/syncer"
	"github.com/jakechorley/overlap/pkg/notify"
	"github.com/jakechorley/overlap/pkg/store/storetest"
)

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{"plain words", "toggle 2024-06-01 2024-06-02", []string{"toggle", "2024-06-01", "2024-06-02"}, false},
		{"double quotes", `create "Team dinner" --mode free`, []string{"create", "Team dinner", "--mode", "free"}, false},
		{"single quotes", `ask 'is Friday ok?'`, []string{"ask", "is Friday ok?"}, false},
		{"empty quoted arg kept", `create ""`, []string{"create", ""}, false},
		{"extra spaces", "  best   --limit  3 ", []string{"best", "--limit", "3"}, false},
		{"unclosed quote", `create "Team`, nil, true},
		{"empty", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestRoot(app *AppContext) *cobra.Command {
	root := &cobra.Command{Use: "overlap", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(LoginCmd(app), AccountsCmd(app), CreateCmd(app), ShowCmd(app), BestCmd(app), ServeCmd(app), InteractiveCmd(app))
	return root
}

func TestRunLine(t *testing.T) {
	app := newTestApp(t, storetest.NewMemory())
	root := newTestRoot(app)
	var out bytes.Buffer
	root.SetOut(&out)

	assert.ErrorIs(t, runLine(root, &out, "quit"), errExit)
	assert.NoError(t, runLine(root, &out, "   "))
	assert.ErrorContains(t, runLine(root, &out, "frobnicate"), "unknown command")
	assert.ErrorContains(t, runLine(root, &out, "serve"), "not available in a session")

	require.NoError(t, runLine(root, &out, "login Ada"))
	require.NoError(t, runLine(root, &out, "login Bo"))

	accounts, err := app.State.Accounts(app.Ctx)
	require.NoError(t, err)
	require.NoError(t, runLine(root, &out, "accounts switch "+accounts[0].ID), "nested subcommands resolve")

	identity, _, err := app.State.Identity(app.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", identity.Name)

	assert.Error(t, runLine(root, &out, "login"), "argument validation still applies")
}

func TestRunLine_ResetsFlags(t *testing.T) {
	app := newTestApp(t, storetest.NewMemory())
	root := newTestRoot(app)
	var out bytes.Buffer
	root.SetOut(&out)

	require.NoError(t, runLine(root, &out, "login Ada"))
	require.NoError(t, runLine(root, &out, `create "Picnic" --description "In the park"`))
	require.NoError(t, runLine(root, &out, "create Supper"))

	rec, ok := app.Session.View()
	require.True(t, ok)
	assert.Equal(t, "Supper", rec.Name)
	assert.Empty(t, rec.Description, "description from the previous run must not leak")
}

func TestInteractiveSession(t *testing.T) {
	app := newTestApp(t, storetest.NewMemory())
	root := newTestRoot(app)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(strings.Join([]string{
		"help",
		"login Ada",
		`create "Team dinner"`,
		"show",
		"nonsense",
		"exit",
		"show",
	}, "\n")))
	root.SetArgs([]string{"interactive"})

	require.NoError(t, root.Execute())

	output := out.String()
	assert.Contains(t, output, "Available commands:")
	assert.Contains(t, output, "switch <id>")
	assert.NotContains(t, output, "Serve events")
	assert.Contains(t, output, "[Team dinner] > ")
	assert.Contains(t, output, "Participants (1):")
	assert.Contains(t, output, "❌ Error: unknown command: nonsense")
	assert.Contains(t, output, "👋 Goodbye!")
	assert.Equal(t, 1, strings.Count(output, "Participants (1):"), "nothing runs after exit")
}

func TestInteractiveSession_PollsOpenEventUntilDeleted(t *testing.T) {
	st := storetest.NewMemory()
	app := newTestApp(t, st)
	app.Cfg.PollInterval = 20 * time.Millisecond

	notices := &notify.Recorder{}
	app.Session = syncer.New(st, app.Logger,
		syncer.WithNotifier(notices),
		syncer.WithForgetter(app.State),
		syncer.WithCoolDown(0),
		syncer.WithOnUpdate(app.HandleUpdate),
	)
	t.Cleanup(app.Session.Close)

	root := newTestRoot(app)
	var out bytes.Buffer
	root.SetOut(&out)

	in, input := io.Pipe()
	root.SetIn(in)
	root.SetArgs([]string{"interactive"})

	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	fmt.Fprintln(input, "login Ada")
	fmt.Fprintln(input, "create Dinner")

	require.Eventually(t, app.Session.Polling, time.Second, 5*time.Millisecond, "opening an event starts polling")
	id := app.Session.EventID()
	require.NotEmpty(t, id)

	// Another client deletes the event
	st.Remove(id)

	require.Eventually(t, func() bool {
		return app.Session.EventID() == "" && notices.ModalCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{syncer.DeletedNotice}, notices.Modals)

	fmt.Fprintln(input, "exit")
	require.NoError(t, input.Close())
	require.NoError(t, <-done)

	assert.False(t, app.Session.Polling())
	history, err := app.State.History(app.Ctx)
	require.NoError(t, err)
	assert.Empty(t, history, "the deleted event is forgotten")
	assert.Contains(t, out.String(), "👋 Goodbye!")
}

func TestInteractiveSession_StopsPollingWhenEventClosed(t *testing.T) {
	app := newTestApp(t, storetest.NewMemory())
	app.Cfg.PollInterval = 20 * time.Millisecond

	root := newTestRoot(app)
	root.AddCommand(CloseCmd(app))
	var out bytes.Buffer
	root.SetOut(&out)

	in, input := io.Pipe()
	root.SetIn(in)
	root.SetArgs([]string{"interactive"})

	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	fmt.Fprintln(input, "login Ada")
	fmt.Fprintln(input, "create Dinner")
	require.Eventually(t, app.Session.Polling, time.Second, 5*time.Millisecond)

	fmt.Fprintln(input, "close")
	require.Eventually(t, func() bool { return !app.Session.Polling() }, time.Second, 5*time.Millisecond)

	fmt.Fprintln(input, "exit")
	require.NoError(t, input.Close())
	require.NoError(t, <-done)
	assert.Empty(t, app.Session.EventID())
}
