package model

import "errors"

var (
	// ErrNotFound means the requested event has no record. Recoverable: the
	// caller returns to the neutral state and shows a message.
	ErrNotFound = errors.New("event not found")

	// ErrDeleted means a background poll saw a definitive absence. The caller
	// must stop polling, forget the event and show a blocking notice.
	ErrDeleted = errors.New("event was deleted")

	// ErrSyncFailure wraps transient store errors during a write. The
	// optimistic local state has already been discarded when it is returned.
	ErrSyncFailure = errors.New("sync failed")

	// ErrValidation is returned before any network call for requests that can never succeed
	ErrValidation = errors.New("validation failed")
)
