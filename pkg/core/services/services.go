// Package services implements the user-facing operations on top of the
// synchronizer and the device's local state. Each operation is a function
// taking narrow interfaces so callers (CLI, interactive session, tests) can
// supply their own implementations.
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/localstate"
)

// Session is the open-event surface of the synchronizer
type Session interface {
	EventID() string
	View() (model.EventRecord, bool)
	Create(ctx context.Context, rec model.EventRecord) (string, error)
	Read(ctx context.Context, id string) (model.EventRecord, error)
	Fetch(ctx context.Context) (model.EventRecord, error)
	Apply(ctx context.Context, transform model.Transform) (model.EventRecord, error)
	Delete(ctx context.Context) error
	Close()
}

// Device is what the services need from local state
type Device interface {
	Identity(ctx context.Context) (localstate.Identity, bool, error)
	SetIdentity(ctx context.Context, id localstate.Identity) error
	Visit(ctx context.Context, id, name string) error
	Forget(ctx context.Context, id string) error
	SetActiveEvent(ctx context.Context, id string) error
	ClearActiveEvent(ctx context.Context) error
}

// ShareLink encodes an event id as the id query parameter of base
func ShareLink(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse share base url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseEventRef accepts either a bare event id or a share link and returns
// the event id
func ParseEventRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "?") || strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: invalid link: %v", model.ErrValidation, err)
		}
		ref = strings.TrimSpace(u.Query().Get("id"))
	}
	if ref == "" {
		return "", fmt.Errorf("%w: no event id given", model.ErrValidation)
	}
	return ref, nil
}

// requireIdentity returns the logged in identity or a validation error
func requireIdentity(ctx context.Context, device Device) (localstate.Identity, error) {
	identity, ok, err := device.Identity(ctx)
	if err != nil {
		return localstate.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}
	if !ok {
		return localstate.Identity{}, fmt.Errorf("%w: log in first", model.ErrValidation)
	}
	return identity, nil
}

// requireView returns the open event's view or a validation error
func requireView(session Session) (model.EventRecord, error) {
	view, ok := session.View()
	if !ok {
		return model.EventRecord{}, fmt.Errorf("%w: no event is open", model.ErrValidation)
	}
	return view, nil
}

// remember records a visit and marks the event active. Failures are logged
// and swallowed: losing history never fails the operation itself.
func remember(ctx context.Context, device Device, logger *zap.Logger, id, name string) {
	if err := device.Visit(ctx, id, name); err != nil {
		logger.Warn("Failed to record visit", zap.String("id", id), zap.Error(err))
	}
	if err := device.SetActiveEvent(ctx, id); err != nil {
		logger.Warn("Failed to set active event", zap.String("id", id), zap.Error(err))
	}
}
