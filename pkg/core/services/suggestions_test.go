package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/clients/assistant"
	"github.com/jakechorley/overlap/pkg/clients/gmailclient"
	"github.com/jakechorley/overlap/pkg/clients/sheetsclient"
	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/model"
)

// dinner has two busy-mode participants; Bo is busy on 4 June only
func dinner() model.EventRecord {
	return model.EventRecord{
		Name:         "Dinner",
		Description:  "Somewhere nice",
		AdminID:      "a",
		Participants: []model.Participant{{ID: "a", Name: "Ada"}, {ID: "b", Name: "Bo"}},
		UnavailableDates: model.DateMarks{
			"2024-06-04": {"b"},
		},
	}
}

func dinnerGroups() []model.DateGroup {
	return aggregator.BestDates(dinner(), time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local), 6)
}

type fakeCompleter struct {
	reply  string
	err    error
	system string
	turns  []assistant.Turn
}

func (f *fakeCompleter) Complete(_ context.Context, system string, turns []assistant.Turn) (string, error) {
	f.system = system
	f.turns = turns
	return f.reply, f.err
}

type fakePublisher struct {
	sheet string
	tab   string
	rows  []sheetsclient.SuggestionRow
}

func (f *fakePublisher) PublishSuggestions(_ context.Context, spreadsheetID, tab string, rows []sheetsclient.SuggestionRow) (int, error) {
	f.sheet, f.tab, f.rows = spreadsheetID, tab, rows
	return len(rows), nil
}

type fakeMailer struct {
	sent   []gmailclient.Email
	failOn string
}

func (f *fakeMailer) SendEmail(_ context.Context, email gmailclient.Email) error {
	if email.To == f.failOn {
		return errBoom
	}
	f.sent = append(f.sent, email)
	return nil
}

func TestBuildPrompt(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "prompt", []byte(BuildPrompt(dinner(), dinnerGroups())))
}

func TestBuildPrompt_Empty(t *testing.T) {
	prompt := BuildPrompt(model.EventRecord{Name: "Picnic"}, nil)
	assert.Contains(t, prompt, "Participants (0): nobody yet")
	assert.Contains(t, prompt, "- none yet")
	assert.NotContains(t, prompt, "Event description")
}

func TestBuildPrompt_ShowsTopFive(t *testing.T) {
	var groups []model.DateGroup
	for _, d := range []string{"2024-06-01", "2024-06-03", "2024-06-05", "2024-06-07", "2024-06-09", "2024-06-11"} {
		groups = append(groups, model.DateGroup{StartDate: d, EndDate: d, AvailableCount: 1, TotalParticipants: 1})
	}
	prompt := BuildPrompt(model.EventRecord{Name: "Picnic"}, groups)
	assert.Equal(t, PromptGroups, strings.Count(prompt, "1/1 available"))
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	turns := []assistant.Turn{{Role: assistant.RoleUser, Text: "Which weekend?"}}

	assert.Equal(t, NoAssistantMessage, Ask(ctx, nil, zap.NewNop(), dinner(), dinnerGroups(), turns))

	failing := &fakeCompleter{err: errBoom}
	assert.Equal(t, AssistantErrorMessage, Ask(ctx, failing, zap.NewNop(), dinner(), dinnerGroups(), turns))

	ok := &fakeCompleter{reply: "Saturday 1 June works for everyone."}
	assert.Equal(t, "Saturday 1 June works for everyone.", Ask(ctx, ok, zap.NewNop(), dinner(), dinnerGroups(), turns))
	assert.Contains(t, ok.system, "Ada, Bo")
	assert.Equal(t, turns, ok.turns)
}

func TestExportCalendar(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	out, err := ExportCalendar(dinner(), "ev1", dinnerGroups(), 2, now)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "ev1-2024-06-01@overlap")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240601")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240604", "end date is exclusive")
	assert.Contains(t, out, "Dinner (option 2)")
	assert.NotContains(t, out, "ev1-2024-06-04@overlap")
}

func TestPublishSuggestions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	_, err := PublishSuggestions(ctx, &fakePublisher{}, zap.NewNop(), dinner(), dinnerGroups(), "", "Suggestions", 5, now)
	assert.ErrorIs(t, err, model.ErrValidation)

	pub := &fakePublisher{}
	n, err := PublishSuggestions(ctx, pub, zap.NewNop(), dinner(), dinnerGroups(), "sheet1", "Suggestions", 5, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "sheet1", pub.sheet)
	assert.Equal(t, sheetsclient.SuggestionRow{
		Generated:    "2024-05-20T12:00:00Z",
		Event:        "Dinner",
		Rank:         3,
		Label:        "Tue 4 Jun",
		StartDate:    "2024-06-04",
		EndDate:      "2024-06-04",
		Available:    1,
		Participants: 2,
	}, pub.rows[2])
}

func TestInviteByEmail(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}

	n, err := InviteByEmail(ctx, mailer, zap.NewNop(), dinner(), dinnerGroups(), Invite{
		Link:       "http://localhost:8080/?id=ev1",
		Recipients: []string{"bo@example.com", "Cy <cy@example.com>"},
		Calendar:   "BEGIN:VCALENDAR",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "cy@example.com", mailer.sent[1].To)
	assert.Equal(t, "You're invited: Dinner", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "http://localhost:8080/?id=ev1")
	assert.Contains(t, mailer.sent[0].Body, "Sat 1 - Mon 3 Jun: 2/2 available")
	require.NotNil(t, mailer.sent[0].Attachment)
	assert.Equal(t, "text/calendar", mailer.sent[0].Attachment.ContentType)
}

func TestInviteByEmail_InvalidRecipientSendsNothing(t *testing.T) {
	mailer := &fakeMailer{}

	_, err := InviteByEmail(context.Background(), mailer, zap.NewNop(), dinner(), nil, Invite{
		Link:       "x",
		Recipients: []string{"bo@example.com", "not-an-address"},
	})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, mailer.sent)
}

func TestInviteByEmail_StopsAtFirstFailure(t *testing.T) {
	mailer := &fakeMailer{failOn: "cy@example.com"}

	n, err := InviteByEmail(context.Background(), mailer, zap.NewNop(), dinner(), nil, Invite{
		Link:       "x",
		Recipients: []string{"bo@example.com", "cy@example.com", "di@example.com"},
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, n)
}
