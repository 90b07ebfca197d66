// Package syncer mediates every read and write of the shared event document.
//
// Writes are read-modify-write: the current remote record is fetched
// immediately before each write, the transform is applied to that copy and
// the result replaces the local view. Polling refreshes the view in the
// background and detects deletion.
//
// The write guard is process-local. It keeps this client's own poll from
// overwriting a view that is part-way through a write; it does nothing to
// stop two different clients writing at the same time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/notify"
	"github.com/jakechorley/overlap/pkg/store"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultCoolDown     = 600 * time.Millisecond

	DeletedNotice = "This event has been deleted by its organiser."
)

// Forgetter drops local references to an event
type Forgetter interface {
	Forget(ctx context.Context, id string) error
}

// Synchronizer owns the local view of one open event
type Synchronizer struct {
	store     store.DocumentStore
	logger    *zap.Logger
	notifier  notify.Notifier
	forgetter Forgetter
	now       func() time.Time
	coolDown  time.Duration
	onUpdate  func(model.EventRecord)

	mu        sync.Mutex
	eventID   string
	view      *model.EventRecord
	inFlight  int
	holdUntil time.Time

	stopPoll context.CancelFunc
	pollDone chan struct{}
}

type Option func(*Synchronizer)

// WithClock replaces time.Now for the write guard
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithCoolDown sets how long the guard stays up after a write completes
func WithCoolDown(d time.Duration) Option {
	return func(s *Synchronizer) { s.coolDown = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Synchronizer) { s.notifier = n }
}

func WithForgetter(f Forgetter) Option {
	return func(s *Synchronizer) { s.forgetter = f }
}

// WithOnUpdate registers a callback run after a poll changes the view
func WithOnUpdate(fn func(model.EventRecord)) Option {
	return func(s *Synchronizer) { s.onUpdate = fn }
}

func New(st store.DocumentStore, logger *zap.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    st,
		logger:   logger,
		notifier: &notify.Recorder{},
		now:      time.Now,
		coolDown: DefaultCoolDown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventID returns the open event, or "" in the neutral state
func (s *Synchronizer) EventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

// View returns a copy of the local view
func (s *Synchronizer) View() (model.EventRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return model.EventRecord{}, false
	}
	return s.view.Clone(), true
}

// Guarded reports whether a write is in flight or cooling down
func (s *Synchronizer) Guarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guardedLocked()
}

func (s *Synchronizer) guardedLocked() bool {
	return s.inFlight > 0 || s.now().Before(s.holdUntil)
}

func (s *Synchronizer) beginWrite() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *Synchronizer) endWrite() {
	s.mu.Lock()
	s.inFlight--
	s.holdUntil = s.now().Add(s.coolDown)
	s.mu.Unlock()
}

func (s *Synchronizer) setView(id string, rec model.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventID = id
	s.view = &rec
}

func (s *Synchronizer) resetLocked() {
	s.eventID = ""
	s.view = nil
}

// Create stores a new event and opens it
func (s *Synchronizer) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	rec.Normalize()
	id, err := s.store.Create(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	s.setView(id, rec.Clone())
	s.logger.Debug("Created event", zap.String("id", id))
	return id, nil
}

// Read opens id, replacing any previous view. A missing event is reported
// as model.ErrNotFound; any failure leaves the synchronizer neutral.
func (s *Synchronizer) Read(ctx context.Context, id string) (model.EventRecord, error) {
	env, err := s.store.Latest(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.resetLocked()
		s.mu.Unlock()
		if store.IsAbsent(err) {
			return model.EventRecord{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return model.EventRecord{}, fmt.Errorf("failed to read event %s: %w", id, err)
	}
	s.setView(id, env.Record)
	return env.Record.Clone(), nil
}

// Fetch returns the current remote record of the open event without
// touching the local view
func (s *Synchronizer) Fetch(ctx context.Context) (model.EventRecord, error) {
	id := s.EventID()
	if id == "" {
		return model.EventRecord{}, fmt.Errorf("%w: no event is open", model.ErrValidation)
	}
	env, err := s.store.Latest(ctx, id)
	if err != nil {
		if store.IsAbsent(err) {
			return model.EventRecord{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return model.EventRecord{}, fmt.Errorf("failed to fetch event %s: %w", id, err)
	}
	return env.Record, nil
}

// Poll refreshes the open event silently. While the write guard is up only
// the display fields are refreshed. A definitive absence is treated as a
// deletion: polling stops, the event is forgotten and a modal notice shown.
// Transient failures leave the view untouched.
func (s *Synchronizer) Poll(ctx context.Context) (model.EventRecord, error) {
	id := s.EventID()
	if id == "" {
		return model.EventRecord{}, model.ErrNotFound
	}

	env, err := s.store.Latest(ctx, id)
	if err != nil {
		if store.IsAbsent(err) {
			return model.EventRecord{}, s.handleDeleted(ctx, id)
		}
		if ctx.Err() == nil {
			s.logger.Warn("Poll failed", zap.String("id", id), zap.Error(err))
		}
		return model.EventRecord{}, fmt.Errorf("failed to poll event %s: %w", id, err)
	}

	s.mu.Lock()
	if s.eventID != id || s.view == nil {
		s.mu.Unlock()
		return env.Record, nil
	}
	if s.guardedLocked() {
		s.view.Name = env.Record.Name
		s.view.Description = env.Record.Description
		s.view.CoverImage = env.Record.CoverImage
		s.view.AdminID = env.Record.AdminID
		s.logger.Debug("Poll suppressed while writing", zap.String("id", id))
	} else {
		rec := env.Record
		s.view = &rec
	}
	view := s.view.Clone()
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(view)
	}
	return view, nil
}

func (s *Synchronizer) handleDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.eventID == id {
		s.resetLocked()
	}
	cancel := s.stopPoll
	s.stopPoll = nil
	s.mu.Unlock()

	// Never wait here: this runs on the polling goroutine itself
	if cancel != nil {
		cancel()
	}

	if s.forgetter != nil {
		if err := s.forgetter.Forget(context.WithoutCancel(ctx), id); err != nil {
			s.logger.Warn("Failed to forget deleted event", zap.String("id", id), zap.Error(err))
		}
	}
	s.logger.Info("Event deleted remotely", zap.String("id", id))
	s.notifier.Modal(DeletedNotice)
	return fmt.Errorf("%w: %s", model.ErrDeleted, id)
}

// Write fetches the current remote record, applies transform, stores the
// result and makes it the local view.
func (s *Synchronizer) Write(ctx context.Context, transform model.Transform) (model.EventRecord, error) {
	s.beginWrite()
	defer s.endWrite()
	return s.write(ctx, transform, nil)
}

// Apply updates the local view optimistically with transform and then
// commits it with Write. On failure the optimistic view is discarded.
func (s *Synchronizer) Apply(ctx context.Context, transform model.Transform) (model.EventRecord, error) {
	s.beginWrite()
	defer s.endWrite()

	s.mu.Lock()
	if s.view == nil {
		s.mu.Unlock()
		return model.EventRecord{}, fmt.Errorf("%w: no event is open", model.ErrValidation)
	}
	snapshot := s.view.Clone()
	optimistic := s.view.Clone()
	if err := transform(&optimistic); err != nil {
		s.mu.Unlock()
		return model.EventRecord{}, err
	}
	s.view = &optimistic
	s.mu.Unlock()

	return s.write(ctx, transform, &snapshot)
}

func (s *Synchronizer) write(ctx context.Context, transform model.Transform, snapshot *model.EventRecord) (model.EventRecord, error) {
	id := s.EventID()
	if id == "" {
		return model.EventRecord{}, fmt.Errorf("%w: no event is open", model.ErrValidation)
	}

	env, err := s.store.Latest(ctx, id)
	if err != nil {
		return model.EventRecord{}, s.fail(ctx, id, snapshot, err)
	}

	rec := env.Record.Clone()
	if err := transform(&rec); err != nil {
		// Nothing was written; the fetched record is authoritative
		s.setCurrent(id, env.Record)
		return model.EventRecord{}, err
	}

	if err := s.store.Replace(ctx, id, rec); err != nil {
		return model.EventRecord{}, s.fail(ctx, id, snapshot, err)
	}

	s.setCurrent(id, rec.Clone())
	s.logger.Debug("Wrote event", zap.String("id", id))
	return rec, nil
}

// setCurrent replaces the view unless the caller navigated away meanwhile
func (s *Synchronizer) setCurrent(id string, rec model.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventID == id {
		s.view = &rec
	}
}

// fail discards optimistic state after a failed write by re-reading the
// authoritative record, falling back to the pre-write snapshot.
func (s *Synchronizer) fail(ctx context.Context, id string, snapshot *model.EventRecord, cause error) error {
	s.logger.Warn("Write failed, resynchronising", zap.String("id", id), zap.Error(cause))

	env, err := s.store.Latest(ctx, id)
	switch {
	case err == nil:
		s.setCurrent(id, env.Record)
	case store.IsAbsent(err):
		s.mu.Lock()
		if s.eventID == id {
			s.resetLocked()
		}
		s.mu.Unlock()
	case snapshot != nil:
		s.setCurrent(id, snapshot.Clone())
	}
	return fmt.Errorf("%w: %w", model.ErrSyncFailure, cause)
}

// Delete removes the open event from the store, stops polling and returns
// to the neutral state.
func (s *Synchronizer) Delete(ctx context.Context) error {
	id := s.EventID()
	if id == "" {
		return fmt.Errorf("%w: no event is open", model.ErrValidation)
	}
	s.StopPolling()

	if err := s.store.Delete(ctx, id); err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}

	s.mu.Lock()
	if s.eventID == id {
		s.resetLocked()
	}
	s.mu.Unlock()
	return nil
}

// Close stops polling and returns to the neutral state
func (s *Synchronizer) Close() {
	s.StopPolling()
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// StartPolling polls the open event every interval until StopPolling, Close,
// ctx cancellation or deletion of the event.
func (s *Synchronizer) StartPolling(ctx context.Context, interval time.Duration) {
	s.StopPolling()
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.stopPoll = cancel
	s.pollDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.Poll(pollCtx); errors.Is(err, model.ErrDeleted) || errors.Is(err, model.ErrNotFound) {
					return
				}
			}
		}
	}()
}

// StopPolling cancels the polling loop and waits for it to exit
func (s *Synchronizer) StopPolling() {
	s.mu.Lock()
	cancel := s.stopPoll
	done := s.pollDone
	s.stopPoll = nil
	s.pollDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Polling reports whether a polling loop is active
func (s *Synchronizer) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopPoll != nil
}

// Done returns a channel closed when the current polling loop exits, or nil
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollDone
}
