package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/core/syncer"
	"github.com/jakechorley/overlap/pkg/store/storetest"
)

func TestCreateEvent_RequiresLogin(t *testing.T) {
	st := storetest.NewMemory()
	c := newClient(t, st)

	_, err := CreateEvent(context.Background(), c.session, c.device, zap.NewNop(), NewEvent{Name: "Dinner"})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Empty(t, st.Calls)
}

func TestCreateEvent_RejectsEmptyName(t *testing.T) {
	c := newClient(t, storetest.NewMemory())
	c.login(t, "Ada")

	_, err := CreateEvent(context.Background(), c.session, c.device, zap.NewNop(), NewEvent{Name: "  "})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCreateEvent_AdminIsFirstParticipant(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()
	c := newClient(t, st)
	ada := c.login(t, "Ada")

	id, err := CreateEvent(ctx, c.session, c.device, zap.NewNop(), NewEvent{
		Name:        " Dinner ",
		Description: "Somewhere nice",
		Mode:        model.ModeFree,
	})
	require.NoError(t, err)

	rec, ok := st.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Dinner", rec.Name)
	assert.Equal(t, ada.ID, rec.AdminID)
	require.Len(t, rec.Participants, 1)
	assert.Equal(t, model.Participant{ID: ada.ID, Name: "Ada", Color: model.ColorFor(0), Mode: model.ModeFree}, rec.Participants[0])

	assert.Equal(t, id, c.session.EventID())
	assert.Equal(t, []string{id}, c.historyIDs(t))
	active, ok, err := c.device.ActiveEvent(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, active)
}

func TestOpenEvent_ByShareLink(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()
	st.Put("ev1", model.EventRecord{Name: "Dinner"})
	c := newClient(t, st)

	rec, err := OpenEvent(ctx, c.session, c.device, zap.NewNop(), "http://localhost:8080/?id=ev1")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", rec.Name)
	assert.Equal(t, "ev1", c.session.EventID())
	assert.Equal(t, []string{"ev1"}, c.historyIDs(t))
}

func TestOpenEvent_NotFoundReturnsToNeutral(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()
	st.Put("ev1", model.EventRecord{Name: "Dinner"})
	c := newClient(t, st)

	_, err := OpenEvent(ctx, c.session, c.device, zap.NewNop(), "ev1")
	require.NoError(t, err)

	_, err = OpenEvent(ctx, c.session, c.device, zap.NewNop(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, IsNeutral(err))
	assert.Empty(t, c.session.EventID())
	assert.Equal(t, []string{"ev1"}, c.historyIDs(t), "other visits are kept")

	_, ok, err := c.device.ActiveEvent(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseEvent(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()
	st.Put("ev1", model.EventRecord{Name: "Dinner"})
	c := newClient(t, st)

	_, err := OpenEvent(ctx, c.session, c.device, zap.NewNop(), "ev1")
	require.NoError(t, err)

	require.NoError(t, CloseEvent(ctx, c.session, c.device, zap.NewNop()))
	assert.Empty(t, c.session.EventID())
	assert.Equal(t, []string{"ev1"}, c.historyIDs(t), "closing keeps history")
}

func TestDeleteEvent_NonAdminRejected(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()
	st.Put("ev1", model.EventRecord{Name: "Dinner", AdminID: "someone-else"})
	c := newClient(t, st)
	c.login(t, "Ada")

	_, err := OpenEvent(ctx, c.session, c.device, zap.NewNop(), "ev1")
	require.NoError(t, err)

	err = DeleteEvent(ctx, c.session, c.device, zap.NewNop())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, ok := st.Get("ev1")
	assert.True(t, ok)
}

func TestDeleteEvent_OtherClientsSeeDeletion(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()

	admin := newClient(t, st)
	admin.login(t, "Ada")
	id, err := CreateEvent(ctx, admin.session, admin.device, zap.NewNop(), NewEvent{Name: "Dinner"})
	require.NoError(t, err)

	guest := newClient(t, st)
	_, err = OpenEvent(ctx, guest.session, guest.device, zap.NewNop(), id)
	require.NoError(t, err)
	_, err = JoinEvent(ctx, guest.session, guest.device, zap.NewNop(), JoinRequest{Name: "Bo"})
	require.NoError(t, err)
	require.Equal(t, []string{id}, guest.historyIDs(t))

	// A client that visited earlier but is not polling
	visitor := newClient(t, st)
	_, err = OpenEvent(ctx, visitor.session, visitor.device, zap.NewNop(), id)
	require.NoError(t, err)
	require.NoError(t, CloseEvent(ctx, visitor.session, visitor.device, zap.NewNop()))
	require.Equal(t, []string{id}, visitor.historyIDs(t))

	require.NoError(t, DeleteEvent(ctx, admin.session, admin.device, zap.NewNop()))
	assert.Empty(t, admin.session.EventID())
	assert.Empty(t, admin.historyIDs(t))
	_, ok := st.Get(id)
	assert.False(t, ok)

	// The guest's next background poll finds the event gone
	_, err = guest.session.Poll(ctx)
	assert.ErrorIs(t, err, model.ErrDeleted)
	assert.Equal(t, 1, guest.notes.ModalCount())
	assert.Equal(t, syncer.DeletedNotice, guest.notes.Modals[0])
	assert.Empty(t, guest.session.EventID())
	assert.Empty(t, guest.historyIDs(t))

	// Reading it again gives not found and drops it from the history
	_, err = OpenEvent(ctx, visitor.session, visitor.device, zap.NewNop(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, visitor.historyIDs(t))

	// A third client opening the old link gets a plain not found
	late := newClient(t, st)
	_, err = OpenEvent(ctx, late.session, late.device, zap.NewNop(), id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpenEvent_TransientFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewMemory()

	admin := newClient(t, st)
	admin.login(t, "Ada")
	id, err := CreateEvent(ctx, admin.session, admin.device, zap.NewNop(), NewEvent{Name: "Dinner"})
	require.NoError(t, err)
	require.NoError(t, CloseEvent(ctx, admin.session, admin.device, zap.NewNop()))

	st.Fail = func(op, _ string) error {
		if op == "latest" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err = OpenEvent(ctx, admin.session, admin.device, zap.NewNop(), id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []string{id}, admin.historyIDs(t))
}
