package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/clients/assistant"
	"github.com/jakechorley/overlap/pkg/clients/gmailclient"
	"github.com/jakechorley/overlap/pkg/clients/sheetsclient"
	"github.com/jakechorley/overlap/pkg/core/aggregator"
	"github.com/jakechorley/overlap/pkg/core/calendar"
	"github.com/jakechorley/overlap/pkg/core/model"
)

const (
	// PromptGroups is how many ranked ranges the assistant is shown
	PromptGroups = 5

	NoAssistantMessage    = "The assistant is not configured. Set API_KEY to chat about dates."
	AssistantErrorMessage = "Sorry, I could not reach the assistant. Check your connection and try again."
)

// Completer produces the assistant's next reply
type Completer interface {
	Complete(ctx context.Context, system string, turns []assistant.Turn) (string, error)
}

// SuggestionPublisher appends ranked suggestions to a spreadsheet and
// reports how many rows were new
type SuggestionPublisher interface {
	PublishSuggestions(ctx context.Context, spreadsheetID, tab string, rows []sheetsclient.SuggestionRow) (int, error)
}

// Mailer sends one email
type Mailer interface {
	SendEmail(ctx context.Context, email gmailclient.Email) error
}

// BuildPrompt renders the system instruction given to the assistant: the
// event, who is taking part and the best date ranges so far
func BuildPrompt(rec model.EventRecord, groups []model.DateGroup) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are helping a group choose a date for the event %q.\n", rec.Name)
	if rec.Description != "" {
		fmt.Fprintf(&sb, "Event description: %s\n", rec.Description)
	}

	names := rec.ParticipantNames()
	fmt.Fprintf(&sb, "Participants (%d): ", len(names))
	if len(names) == 0 {
		sb.WriteString("nobody yet")
	} else {
		sb.WriteString(strings.Join(names, ", "))
	}
	sb.WriteString("\n\n")

	sb.WriteString("Best date ranges, most available first:\n")
	top := aggregator.Top(groups, PromptGroups)
	if len(top) == 0 {
		sb.WriteString("- none yet\n")
	}
	for _, g := range top {
		fmt.Fprintf(&sb, "- %s\n", aggregator.Summary(g))
	}

	sb.WriteString("\nAnswer briefly and in a friendly tone. Only recommend dates from the list above unless asked about other dates.\n")
	return sb.String()
}

// Ask returns the assistant's reply to the conversation so far. It never
// fails: a missing completer or a failed call yields a fixed message.
func Ask(ctx context.Context, completer Completer, logger *zap.Logger, rec model.EventRecord, groups []model.DateGroup, turns []assistant.Turn) string {
	if completer == nil {
		return NoAssistantMessage
	}

	reply, err := completer.Complete(ctx, BuildPrompt(rec, groups), turns)
	if err != nil {
		logger.Warn("Assistant call failed", zap.Error(err))
		return AssistantErrorMessage
	}
	return reply
}

// ExportCalendar renders the top ranked ranges as all-day events in an
// iCalendar document
func ExportCalendar(rec model.EventRecord, eventID string, groups []model.DateGroup, limit int, now time.Time) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//overlap//date suggestions//EN")
	cal.SetName(rec.Name)

	for i, g := range aggregator.Top(groups, limit) {
		start, err := calendar.Parse(g.StartDate)
		if err != nil {
			return "", err
		}
		end, err := calendar.Parse(g.EndDate)
		if err != nil {
			return "", err
		}

		ev := cal.AddEvent(fmt.Sprintf("%s-%s@overlap", eventID, g.StartDate))
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(fmt.Sprintf("%s (option %d)", rec.Name, i+1))
		ev.SetDescription(fmt.Sprintf("%d of %d participants available", g.AvailableCount, g.TotalParticipants))
		ev.SetAllDayStartAt(start)
		// DTEND of an all-day event is exclusive
		ev.SetAllDayEndAt(calendar.AddDays(end, 1))
	}

	return cal.Serialize(), nil
}

// PublishSuggestions appends the ranked ranges to a spreadsheet tab and
// returns how many were new to it
func PublishSuggestions(ctx context.Context, publisher SuggestionPublisher, logger *zap.Logger, rec model.EventRecord, groups []model.DateGroup, spreadsheetID, tab string, limit int, now time.Time) (int, error) {
	if spreadsheetID == "" {
		return 0, fmt.Errorf("%w: suggestionsSheetID is not configured", model.ErrValidation)
	}

	top := aggregator.Top(groups, limit)
	rows := make([]sheetsclient.SuggestionRow, len(top))
	for i, g := range top {
		rows[i] = sheetsclient.SuggestionRow{
			Generated:    now.Format(time.RFC3339),
			Event:        rec.Name,
			Rank:         i + 1,
			Label:        aggregator.Label(g),
			StartDate:    g.StartDate,
			EndDate:      g.EndDate,
			Available:    g.AvailableCount,
			Participants: g.TotalParticipants,
		}
	}

	logger.Debug("Publishing suggestions", zap.String("sheet", spreadsheetID), zap.Int("rows", len(rows)))
	n, err := publisher.PublishSuggestions(ctx, spreadsheetID, tab, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to publish suggestions: %w", err)
	}
	return n, nil
}

// Invite is an emailed invitation to an event
type Invite struct {
	Link       string
	Recipients []string
	// Calendar is an optional .ics attachment of the best dates
	Calendar string
}

// InviteByEmail emails the share link and current best dates to every
// recipient. Addresses are validated before anything is sent; sending stops
// at the first failure and reports how many went out.
func InviteByEmail(ctx context.Context, mailer Mailer, logger *zap.Logger, rec model.EventRecord, groups []model.DateGroup, invite Invite) (int, error) {
	if len(invite.Recipients) == 0 {
		return 0, fmt.Errorf("%w: no recipients given", model.ErrValidation)
	}

	addresses := make([]string, 0, len(invite.Recipients))
	var invalid []error
	for _, r := range invite.Recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			invalid = append(invalid, fmt.Errorf("%q: %w", r, err))
			continue
		}
		addresses = append(addresses, addr.Address)
	}
	if len(invalid) > 0 {
		return 0, fmt.Errorf("%w: invalid recipients: %w", model.ErrValidation, errors.Join(invalid...))
	}

	email := gmailclient.Email{
		Subject: fmt.Sprintf("You're invited: %s", rec.Name),
		Body:    inviteBody(rec, groups, invite.Link),
	}
	if invite.Calendar != "" {
		email.Attachment = &gmailclient.Attachment{
			Filename:    "suggested-dates.ics",
			ContentType: "text/calendar",
			Data:        []byte(invite.Calendar),
		}
	}

	sent := 0
	for _, addr := range addresses {
		email.To = addr
		if err := mailer.SendEmail(ctx, email); err != nil {
			return sent, fmt.Errorf("failed to invite %s: %w", addr, err)
		}
		sent++
		logger.Debug("Invite sent", zap.String("to", addr))
	}

	logger.Info("Invites sent", zap.Int("count", sent))
	return sent, nil
}

func inviteBody(rec model.EventRecord, groups []model.DateGroup, link string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have been invited to help pick a date for %s.\n\n", rec.Name)
	if rec.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", rec.Description)
	}
	fmt.Fprintf(&sb, "Mark your availability here: %s\n", link)

	if top := aggregator.Top(groups, 3); len(top) > 0 {
		sb.WriteString("\nBest dates so far:\n")
		for _, g := range top {
			fmt.Fprintf(&sb, "- %s\n", aggregator.Summary(g))
		}
	}
	return sb.String()
}
