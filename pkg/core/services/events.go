package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
)

// NewEvent describes an event about to be created
type NewEvent struct {
	Name        string
	Description string
	CoverImage  string
	Mode        model.Mode
}

// CreateEvent stores a new event with the caller as admin and first
// participant, and opens it
func CreateEvent(ctx context.Context, session Session, device Device, logger *zap.Logger, ev NewEvent) (string, error) {
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		return "", fmt.Errorf("%w: event name is required", model.ErrValidation)
	}
	if ev.Mode != "" && !ev.Mode.IsValid() {
		return "", fmt.Errorf("%w: unknown mode %q", model.ErrValidation, ev.Mode)
	}

	identity, err := requireIdentity(ctx, device)
	if err != nil {
		return "", err
	}

	logger.Debug("Creating event", zap.String("name", name), zap.String("admin", identity.ID))

	rec := model.EventRecord{
		Name:        name,
		Description: strings.TrimSpace(ev.Description),
		CoverImage:  ev.CoverImage,
		AdminID:     identity.ID,
		Participants: []model.Participant{{
			ID:     identity.ID,
			Name:   identity.Name,
			Avatar: identity.Avatar,
			Color:  model.ColorFor(0),
			Mode:   ev.Mode.OrDefault(),
		}},
	}

	id, err := session.Create(ctx, rec)
	if err != nil {
		return "", err
	}

	remember(ctx, device, logger, id, name)
	logger.Info("Event created", zap.String("id", id), zap.String("name", name))
	return id, nil
}

// OpenEvent reads the event referenced by an id or share link and makes it
// the active event. On failure the device returns to the neutral state, and
// an event that no longer exists is dropped from the history.
func OpenEvent(ctx context.Context, session Session, device Device, logger *zap.Logger, ref string) (model.EventRecord, error) {
	id, err := ParseEventRef(ref)
	if err != nil {
		return model.EventRecord{}, err
	}

	logger.Debug("Opening event", zap.String("id", id))

	rec, err := session.Read(ctx, id)
	if err != nil {
		if clearErr := device.ClearActiveEvent(ctx); clearErr != nil {
			logger.Warn("Failed to clear active event", zap.Error(clearErr))
		}
		// A transient failure keeps the history entry for a retry
		if errors.Is(err, model.ErrNotFound) {
			if forgetErr := device.Forget(ctx, id); forgetErr != nil {
				logger.Warn("Failed to forget missing event", zap.String("id", id), zap.Error(forgetErr))
			}
		}
		return model.EventRecord{}, err
	}

	remember(ctx, device, logger, id, rec.Name)
	return rec, nil
}

// CloseEvent returns to the neutral state
func CloseEvent(ctx context.Context, session Session, device Device, logger *zap.Logger) error {
	id := session.EventID()
	session.Close()
	if err := device.ClearActiveEvent(ctx); err != nil {
		return fmt.Errorf("failed to clear active event: %w", err)
	}
	logger.Debug("Closed event", zap.String("id", id))
	return nil
}

// DeleteEvent permanently removes the open event. Only its admin may do
// this. Polling stops and the local history entry is purged.
func DeleteEvent(ctx context.Context, session Session, device Device, logger *zap.Logger) error {
	view, err := requireView(session)
	if err != nil {
		return err
	}
	identity, err := requireIdentity(ctx, device)
	if err != nil {
		return err
	}
	if !view.IsAdmin(identity.ID) {
		return fmt.Errorf("%w: only the organiser can delete this event", model.ErrValidation)
	}

	id := session.EventID()
	logger.Debug("Deleting event", zap.String("id", id))

	if err := session.Delete(ctx); err != nil {
		return err
	}
	if err := device.Forget(ctx, id); err != nil {
		logger.Warn("Failed to forget deleted event", zap.String("id", id), zap.Error(err))
	}

	logger.Info("Event deleted", zap.String("id", id))
	return nil
}

// IsNeutral reports whether err leaves the caller in the neutral state
func IsNeutral(err error) bool {
	return errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrDeleted)
}
