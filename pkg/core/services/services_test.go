package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/syncer"
	"github.com/jakechorley/overlap/pkg/localdb"
	"github.com/jakechorley/overlap/pkg/localstate"
	"github.com/jakechorley/overlap/pkg/notify"
	"github.com/jakechorley/overlap/pkg/store"
)

// client is one device: its own synchronizer and local state, sharing a
// document store with every other client in the test
type client struct {
	session *syncer.Synchronizer
	device  *localstate.State
	notes   *notify.Recorder
}

func newClient(t *testing.T, st store.DocumentStore) *client {
	t.Helper()
	db, err := localdb.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	device := localstate.New(db)
	notes := &notify.Recorder{}
	session := syncer.New(st, zap.NewNop(),
		syncer.WithNotifier(notes),
		syncer.WithForgetter(device),
		syncer.WithCoolDown(0),
	)
	t.Cleanup(session.Close)

	return &client{session: session, device: device, notes: notes}
}

func (c *client) login(t *testing.T, name string) localstate.Identity {
	t.Helper()
	identity, err := c.device.Login(context.Background(), name, "")
	require.NoError(t, err)
	return identity
}

func (c *client) historyIDs(t *testing.T) []string {
	t.Helper()
	items, err := c.device.History(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(items))
	for i, h := range items {
		ids[i] = h.ID
	}
	return ids
}

// assertNoDanglingIDs checks every marked id belongs to a participant
func assertNoDanglingIDs(t *testing.T, rec model.EventRecord) {
	t.Helper()
	present := map[string]bool{}
	for _, p := range rec.Participants {
		present[p.ID] = true
	}
	for _, marks := range []model.DateMarks{rec.UnavailableDates, rec.AvailableDates} {
		for date, ids := range marks {
			assert.NotEmpty(t, ids, "empty bucket kept for %s", date)
			for _, id := range ids {
				assert.True(t, present[id], "dangling id %s on %s", id, date)
			}
		}
	}
}

func TestShareLink(t *testing.T) {
	link, err := ShareLink("https://overlap.example.com/app", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://overlap.example.com/app?id=abc123", link)

	link, err = ShareLink("http://localhost:8080/?theme=dark", "x")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/?id=x&theme=dark", link)
}

func TestParseEventRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"bare id", " abc123 ", "abc123", false},
		{"share link", "https://overlap.example.com/?id=abc123", "abc123", false},
		{"query only", "?id=local_1a2b", "local_1a2b", false},
		{"link without id", "https://overlap.example.com/", "", true},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
