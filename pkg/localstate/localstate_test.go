package localstate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/overlap/pkg/core/model"
)

type mapKV map[string]string

func (m mapKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapKV) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m mapKV) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func newTestState() *State {
	return New(mapKV{})
}

func TestLogin_ReusesAccountCaseInsensitively(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	first, err := s.Login(ctx, "Mara", "data:image/jpeg;base64,AAA")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	second, err := s.Login(ctx, "  mara ", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Mara", second.Name, "saved account name is kept")
	assert.Equal(t, "data:image/jpeg;base64,AAA", second.Avatar, "avatar reused when none given")

	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestLogin_NewNameMintsID(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	a, err := s.Login(ctx, "Ann", "")
	require.NoError(t, err)
	b, err := s.Login(ctx, "Ben", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 9)

	active, ok, err := s.Identity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, active)
}

func TestLogin_EmptyNameRejected(t *testing.T) {
	_, err := newTestState().Login(context.Background(), "   ", "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLogout_KeepsAccounts(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	acc, err := s.Login(ctx, "Ann", "")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	_, ok, err := s.Identity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := s.SwitchAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc, id)
}

func TestRemoveAccount(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	a, _ := s.Login(ctx, "Ann", "")
	b, _ := s.Login(ctx, "Ben", "")
	require.NoError(t, s.RemoveAccount(ctx, a.ID))

	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Account{b}, accounts)

	_, err = s.SwitchAccount(ctx, a.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestVisit_MostRecentFirstDeduplicatedAndBounded(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s := newTestState().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, s.Visit(ctx, fmt.Sprintf("ev%d", i), fmt.Sprintf("Event %d", i)))
	}
	require.NoError(t, s.Visit(ctx, "ev5", "Event 5 renamed"))

	items, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, MaxHistory)

	assert.Equal(t, "ev5", items[0].ID)
	assert.Equal(t, "Event 5 renamed", items[0].Name)
	assert.Equal(t, "ev11", items[1].ID)

	seen := map[string]bool{}
	for _, item := range items {
		assert.False(t, seen[item.ID], "duplicate %s", item.ID)
		seen[item.ID] = true
	}
	assert.False(t, seen["ev0"])
	assert.False(t, seen["ev1"])
}

func TestForget_ClearsHistoryAndActiveEvent(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	require.NoError(t, s.Visit(ctx, "a", "A"))
	require.NoError(t, s.Visit(ctx, "b", "B"))
	require.NoError(t, s.SetActiveEvent(ctx, "a"))

	require.NoError(t, s.Forget(ctx, "a"))

	items, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	_, ok, err := s.ActiveEvent(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForget_LeavesOtherActiveEvent(t *testing.T) {
	s := newTestState()
	ctx := context.Background()

	require.NoError(t, s.SetActiveEvent(ctx, "b"))
	require.NoError(t, s.Forget(ctx, "a"))

	active, ok, err := s.ActiveEvent(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", active)
}
