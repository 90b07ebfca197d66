package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jakechorley/overlap/pkg/core/model"
)

// ErrNotFound is returned when a store definitively has no document for an id
var ErrNotFound = errors.New("document not found")

// DocumentStore is an opaque key -> JSON document store. Every backend
// (remote jsonbin, local sqlite, postgres, redis) implements it identically,
// so the synchronizer cannot tell which one it talks to.
type DocumentStore interface {
	Latest(ctx context.Context, id string) (*model.Envelope, error)
	Create(ctx context.Context, rec model.EventRecord) (string, error)
	Replace(ctx context.Context, id string, rec model.EventRecord) error
	Delete(ctx context.Context, id string) error
}

// StatusError reports a non-2xx response from an HTTP-backed store
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a definitive absence
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAbsent is the looser classification used by background polling: besides
// a definitive absence it treats 400 and 403 as "the resource is gone", since
// the remote store answers those for deleted or foreign documents.
func IsAbsent(err error) bool {
	if IsNotFound(err) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusBadRequest, http.StatusForbidden:
			return true
		}
	}
	return false
}
