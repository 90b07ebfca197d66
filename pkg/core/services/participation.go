package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/calendar"
	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/localstate"
)

// MarkAction is what a bulk operation does to each date
type MarkAction string

const (
	// ActionFill marks every date
	ActionFill MarkAction = "fill"
	// ActionClear unmarks every date
	ActionClear MarkAction = "clear"
)

func (a MarkAction) validate() error {
	if a != ActionFill && a != ActionClear {
		return fmt.Errorf("%w: unknown action %q (expected fill or clear)", model.ErrValidation, a)
	}
	return nil
}

// JoinRequest is what a person supplies when joining
type JoinRequest struct {
	Name   string
	Avatar string
	Mode   model.Mode
}

// JoinResult reports who the caller joined as
type JoinResult struct {
	Participant model.Participant
	// Merged is true when the caller was already part of the event, either by
	// stored id or by name
	Merged  bool
	Message string
}

// joinParticipant upserts p, keeping the colour of an existing entry and
// otherwise taking the next palette colour of the record it is applied to
func joinParticipant(p model.Participant) model.Transform {
	return func(rec *model.EventRecord) error {
		rec.Normalize()
		if existing, idx := rec.Participant(p.ID); idx >= 0 && existing.Color != "" {
			p.Color = existing.Color
		} else {
			p.Color = model.ColorFor(len(rec.Participants))
		}
		rec.UpsertParticipant(p)
		return nil
	}
}

// JoinEvent adds the caller to the open event. The current remote
// participant list is checked for the same name (ignoring case) so a person
// rejoining from a new device keeps their original id.
func JoinEvent(ctx context.Context, session Session, device Device, logger *zap.Logger, req JoinRequest) (*JoinResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if req.Mode != "" && !req.Mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown mode %q", model.ErrValidation, req.Mode)
	}

	remote, err := session.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}

	identity, hasIdentity, err := device.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	existing, merged := remote.FindByName(name)
	var id string
	switch {
	case merged:
		// Keep the spelling already on the event
		id, name = existing.ID, existing.Name
		logger.Debug("Merging identity by name", zap.String("name", name), zap.String("id", id))
	case hasIdentity:
		id = identity.ID
	default:
		id = localstate.NewParticipantID()
	}
	if current, idx := remote.Participant(id); idx >= 0 {
		existing, merged = current, true
	}

	avatar := req.Avatar
	if avatar == "" && merged {
		avatar = existing.Avatar
	}

	p := model.Participant{ID: id, Name: name, Avatar: avatar, Mode: req.Mode.OrDefault()}
	rec, err := session.Apply(ctx, joinParticipant(p))
	if err != nil {
		return nil, err
	}

	// The device only takes the id once the event has it
	if err := device.SetIdentity(ctx, localstate.Identity{ID: id, Name: name, Avatar: avatar}); err != nil {
		logger.Warn("Failed to save identity", zap.Error(err))
	}

	joined, _ := rec.Participant(id)
	remember(ctx, device, logger, session.EventID(), rec.Name)

	result := &JoinResult{Participant: joined, Merged: merged}
	if merged {
		result.Message = fmt.Sprintf("Welcome back, %s!", name)
	} else {
		result.Message = fmt.Sprintf("Welcome, %s!", name)
	}
	logger.Info("Joined event", zap.String("event", session.EventID()), zap.String("participant", id), zap.Bool("merged", merged))
	return result, nil
}

// JoinFromHistory reopens a previously visited event as the logged in
// identity. A caller already in the event (by id or name) is simply
// reattached; otherwise they join marking busy dates. An event that can no
// longer be read is dropped from the history.
func JoinFromHistory(ctx context.Context, session Session, device Device, logger *zap.Logger, eventID string) (*JoinResult, error) {
	identity, err := requireIdentity(ctx, device)
	if err != nil {
		return nil, err
	}

	rec, err := session.Read(ctx, eventID)
	if err != nil {
		if forgetErr := device.Forget(ctx, eventID); forgetErr != nil {
			logger.Warn("Failed to forget unreachable event", zap.String("id", eventID), zap.Error(forgetErr))
		}
		return nil, fmt.Errorf("could not open event, it may have been deleted: %w", err)
	}

	existing, idx := rec.Participant(identity.ID)
	found := idx >= 0
	if !found {
		existing, found = rec.FindByName(identity.Name)
	}

	if found {
		if existing.ID != identity.ID {
			logger.Debug("Adopting id from event", zap.String("from", identity.ID), zap.String("to", existing.ID))
			identity.ID = existing.ID
			if err := device.SetIdentity(ctx, identity); err != nil {
				logger.Warn("Failed to save identity", zap.Error(err))
			}
		}
		remember(ctx, device, logger, eventID, rec.Name)
		return &JoinResult{
			Participant: existing,
			Merged:      true,
			Message:     fmt.Sprintf("Welcome back, %s!", existing.Name),
		}, nil
	}

	p := model.Participant{ID: identity.ID, Name: identity.Name, Avatar: identity.Avatar, Mode: model.ModeBusy}
	updated, err := session.Apply(ctx, joinParticipant(p))
	if err != nil {
		return nil, err
	}
	joined, _ := updated.Participant(identity.ID)

	remember(ctx, device, logger, eventID, updated.Name)
	logger.Info("Joined event from history", zap.String("event", eventID), zap.String("participant", identity.ID))
	return &JoinResult{
		Participant: joined,
		Message:     fmt.Sprintf("Joined %s, marking the dates you are busy", updated.Name),
	}, nil
}

// LeaveEvent removes the caller and all their marks from the open event and
// returns to the neutral state once the write succeeds. The organiser cannot
// leave and must delete the event instead.
func LeaveEvent(ctx context.Context, session Session, device Device, logger *zap.Logger) error {
	view, err := requireView(session)
	if err != nil {
		return err
	}
	identity, err := requireIdentity(ctx, device)
	if err != nil {
		return err
	}
	if view.IsAdmin(identity.ID) {
		return fmt.Errorf("%w: the organiser cannot leave, delete the event instead", model.ErrValidation)
	}
	if _, idx := view.Participant(identity.ID); idx < 0 {
		return fmt.Errorf("%w: you are not part of this event", model.ErrValidation)
	}

	id := session.EventID()
	logger.Debug("Leaving event", zap.String("event", id), zap.String("participant", identity.ID))

	if _, err := session.Apply(ctx, model.RemoveParticipant(identity.ID)); err != nil {
		return err
	}

	session.Close()
	if err := device.ClearActiveEvent(ctx); err != nil {
		logger.Warn("Failed to clear active event", zap.Error(err))
	}
	logger.Info("Left event", zap.String("event", id))
	return nil
}

// currentParticipant returns the caller's participant entry in the open view
func currentParticipant(ctx context.Context, session Session, device Device) (model.EventRecord, model.Participant, error) {
	view, err := requireView(session)
	if err != nil {
		return model.EventRecord{}, model.Participant{}, err
	}
	identity, err := requireIdentity(ctx, device)
	if err != nil {
		return model.EventRecord{}, model.Participant{}, err
	}
	p, idx := view.Participant(identity.ID)
	if idx < 0 {
		return model.EventRecord{}, model.Participant{}, fmt.Errorf("%w: join the event first", model.ErrValidation)
	}
	return view, p, nil
}

// ToggleDate sets the caller's mark on one date, in the map of their mode,
// to the opposite of what the open view shows. The write carries that
// explicit value rather than flipping the record fetched at write time.
// It returns whether the date is now marked.
func ToggleDate(ctx context.Context, session Session, device Device, logger *zap.Logger, date string) (bool, error) {
	day, err := calendar.Parse(date)
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	date = calendar.ISO(day)

	view, p, err := currentParticipant(ctx, session, device)
	if err != nil {
		return false, err
	}

	mode := p.EffectiveMode()
	marked := !view.Marks(mode).Has(date, p.ID)

	logger.Debug("Toggling date", zap.String("date", date), zap.String("mode", string(mode)), zap.Bool("marked", marked))

	if _, err := session.Apply(ctx, model.Chain(
		model.RequireParticipant(p.ID),
		model.SetMark(p.ID, mode, date, marked),
	)); err != nil {
		return false, err
	}
	return marked, nil
}

// SetMonthStatus fills or clears the caller's marks on every day of a month
// ("YYYY-MM"). Days outside the month are left as they are remotely.
func SetMonthStatus(ctx context.Context, session Session, device Device, logger *zap.Logger, month string, action MarkAction) ([]string, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}
	year, mon, err := calendar.ParseMonth(month)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	dates := calendar.MonthDates(year, mon)
	if err := setMarks(ctx, session, device, logger, dates, action); err != nil {
		return nil, err
	}
	return dates, nil
}

// ApplyRecurringMarks fills or clears the caller's marks on every
// occurrence of an RRULE within the horizon starting today
func ApplyRecurringMarks(ctx context.Context, session Session, device Device, logger *zap.Logger, rule string, action MarkAction, today time.Time, horizonDays int) ([]string, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}
	dates, err := RecurringDates(rule, today, horizonDays)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		logger.Info("Rule has no occurrences in the horizon", zap.String("rule", rule))
		return nil, nil
	}

	if err := setMarks(ctx, session, device, logger, dates, action); err != nil {
		return nil, err
	}
	return dates, nil
}

func setMarks(ctx context.Context, session Session, device Device, logger *zap.Logger, dates []string, action MarkAction) error {
	_, p, err := currentParticipant(ctx, session, device)
	if err != nil {
		return err
	}

	mode := p.EffectiveMode()
	logger.Debug("Setting marks",
		zap.Int("dates", len(dates)),
		zap.String("mode", string(mode)),
		zap.String("action", string(action)))

	_, err = session.Apply(ctx, model.Chain(
		model.RequireParticipant(p.ID),
		model.SetMarks(p.ID, mode, dates, action == ActionFill),
	))
	return err
}

// RecurringDates expands an RRULE into the ISO dates it hits within
// horizonDays of today. Rules without their own DTSTART start today.
func RecurringDates(rule string, today time.Time, horizonDays int) ([]string, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rrule %q: %v", model.ErrValidation, rule, err)
	}

	start := calendar.Midnight(today)
	end := calendar.AddDays(start, horizonDays)
	if !strings.Contains(strings.ToUpper(rule), "DTSTART") {
		r.DTStart(start)
	}

	var dates []string
	for _, occ := range r.Between(start, end.Add(-time.Nanosecond), true) {
		iso := calendar.ISO(occ.In(start.Location()))
		if !slices.Contains(dates, iso) {
			dates = append(dates, iso)
		}
	}
	slices.Sort(dates)
	return dates, nil
}
