// Package localstate persists what a single device remembers between
// sessions: who the caller is, which identities they have used before,
// which events they visited and which event is currently open.
package localstate

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/overlap/pkg/core/model"
)

const (
	keyIdentity    = "identity"
	keyAccounts    = "saved_accounts"
	keyHistory     = "event_history"
	keyActiveEvent = "active_event"

	// MaxHistory bounds the visit history
	MaxHistory = 10
)

// KV is the key/value backend the state is kept in
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Identity is the caller's active participant identity
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Account is a remembered identity that can be switched back to
type Account = Identity

// HistoryItem is one visited event
type HistoryItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LastVisited time.Time `json:"lastVisited"`
}

// State reads and writes device state through a KV backend
type State struct {
	kv  KV
	now func() time.Time
}

func New(kv KV) *State {
	return &State{kv: kv, now: time.Now}
}

// WithClock overrides the clock used to stamp history entries
func (s *State) WithClock(now func() time.Time) *State {
	s.now = now
	return s
}

// NewParticipantID mints a random opaque participant id
func NewParticipantID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

func (s *State) load(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *State) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(data))
}

// Identity returns the active identity, if one is logged in
func (s *State) Identity(ctx context.Context) (Identity, bool, error) {
	var id Identity
	ok, err := s.load(ctx, keyIdentity, &id)
	if err != nil || !ok || id.ID == "" {
		return Identity{}, false, err
	}
	return id, true, nil
}

// SetIdentity makes id the active identity without touching saved accounts
func (s *State) SetIdentity(ctx context.Context, id Identity) error {
	return s.save(ctx, keyIdentity, id)
}

// Logout forgets the active identity. Saved accounts are kept.
func (s *State) Logout(ctx context.Context) error {
	return s.kv.Delete(ctx, keyIdentity)
}

// Login activates an identity for name. A saved account with the same name
// (case-insensitive) is reused, keeping its id and, when avatar is empty,
// its avatar; otherwise a new id is minted and the account remembered.
func (s *State) Login(ctx context.Context, name, avatar string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, fmt.Errorf("%w: name is required", model.ErrValidation)
	}

	accounts, err := s.Accounts(ctx)
	if err != nil {
		return Identity{}, err
	}

	var identity Identity
	idx := slices.IndexFunc(accounts, func(a Account) bool { return model.SameName(a.Name, name) })
	if idx >= 0 {
		identity = accounts[idx]
		if avatar != "" {
			identity.Avatar = avatar
		}
		accounts[idx] = identity
	} else {
		identity = Identity{ID: NewParticipantID(), Name: name, Avatar: avatar}
		accounts = append(accounts, identity)
	}

	if err := s.save(ctx, keyAccounts, accounts); err != nil {
		return Identity{}, err
	}
	if err := s.SetIdentity(ctx, identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// Accounts lists remembered identities in the order they were first used
func (s *State) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if _, err := s.load(ctx, keyAccounts, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SwitchAccount activates a remembered identity by id
func (s *State) SwitchAccount(ctx context.Context, id string) (Identity, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return Identity{}, err
	}
	idx := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id })
	if idx < 0 {
		return Identity{}, fmt.Errorf("%w: no saved account %s", model.ErrValidation, id)
	}
	if err := s.SetIdentity(ctx, accounts[idx]); err != nil {
		return Identity{}, err
	}
	return accounts[idx], nil
}

// RemoveAccount forgets a remembered identity
func (s *State) RemoveAccount(ctx context.Context, id string) error {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, keyAccounts, slices.DeleteFunc(accounts, func(a Account) bool { return a.ID == id }))
}

// History returns visited events, most recent first
func (s *State) History(ctx context.Context) ([]HistoryItem, error) {
	var items []HistoryItem
	if _, err := s.load(ctx, keyHistory, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Visit moves (or adds) an event to the front of the history
func (s *State) Visit(ctx context.Context, id, name string) error {
	items, err := s.History(ctx)
	if err != nil {
		return err
	}
	items = slices.DeleteFunc(items, func(h HistoryItem) bool { return h.ID == id })
	items = append([]HistoryItem{{ID: id, Name: name, LastVisited: s.now()}}, items...)
	if len(items) > MaxHistory {
		items = items[:MaxHistory]
	}
	return s.save(ctx, keyHistory, items)
}

// Forget removes an event from the history and clears it as the active
// event if it was open
func (s *State) Forget(ctx context.Context, id string) error {
	items, err := s.History(ctx)
	if err != nil {
		return err
	}
	if err := s.save(ctx, keyHistory, slices.DeleteFunc(items, func(h HistoryItem) bool { return h.ID == id })); err != nil {
		return err
	}

	active, ok, err := s.ActiveEvent(ctx)
	if err != nil {
		return err
	}
	if ok && active == id {
		return s.ClearActiveEvent(ctx)
	}
	return nil
}

// ActiveEvent returns the id of the currently open event
func (s *State) ActiveEvent(ctx context.Context) (string, bool, error) {
	id, ok, err := s.kv.Get(ctx, keyActiveEvent)
	if err != nil || !ok || id == "" {
		return "", false, err
	}
	return id, true, nil
}

func (s *State) SetActiveEvent(ctx context.Context, id string) error {
	return s.kv.Set(ctx, keyActiveEvent, id)
}

// ClearActiveEvent returns the device to the neutral state
func (s *State) ClearActiveEvent(ctx context.Context) error {
	return s.kv.Delete(ctx, keyActiveEvent)
}
