package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAbsent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
		absent   bool
	}{
		{"not found", ErrNotFound, true, true},
		{"wrapped not found", fmt.Errorf("failed to fetch: %w", ErrNotFound), true, true},
		{"bad request", &StatusError{Op: "GET", StatusCode: 400}, false, true},
		{"forbidden", &StatusError{Op: "GET", StatusCode: 403}, false, true},
		{"server error", &StatusError{Op: "GET", StatusCode: 502}, false, false},
		{"transport", errors.New("connection refused"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.absent, IsAbsent(tt.err))
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Op: "PUT", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "PUT: unexpected status 500: boom", err.Error())
}
