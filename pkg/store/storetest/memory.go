// Package storetest provides an in-memory DocumentStore with failure
// injection for exercising the synchronizer without a network.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

// Memory is a DocumentStore backed by a map of JSON blobs. Records are
// round-tripped through JSON so callers never share memory with the store.
type Memory struct {
	mu     sync.Mutex
	docs   map[string][]byte
	nextID int

	// Fail, when set, is consulted before every operation; a non-nil
	// return is handed back to the caller instead of running the operation.
	Fail func(op, id string) error

	// BeforeReplace runs just before a Replace is committed, letting tests
	// simulate another client writing in the gap.
	BeforeReplace func(id string)

	Calls []string
}

var _ store.DocumentStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Put seeds a document directly
func (m *Memory) Put(id string, rec model.EventRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := json.Marshal(rec)
	m.docs[id] = data
}

// Get returns the stored document without recording a call
func (m *Memory) Get(id string) (model.EventRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[id]
	if !ok {
		return model.EventRecord{}, false
	}
	var rec model.EventRecord
	_ = json.Unmarshal(data, &rec)
	rec.Normalize()
	return rec, true
}

// Remove deletes a document directly, as another client would
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

func (m *Memory) record(op, id string) error {
	m.Calls = append(m.Calls, op+" "+id)
	if m.Fail != nil {
		return m.Fail(op, id)
	}
	return nil
}

func (m *Memory) Latest(ctx context.Context, id string) (*model.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("latest", id); err != nil {
		return nil, err
	}
	data, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("latest %s: %w", id, store.ErrNotFound)
	}
	var rec model.EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.Normalize()
	return &model.Envelope{Record: rec, Metadata: model.Metadata{ID: id}}, nil
}

func (m *Memory) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("mem_%d", m.nextID)
	if err := m.record("create", id); err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	m.docs[id] = data
	return id, nil
}

func (m *Memory) Replace(ctx context.Context, id string, rec model.EventRecord) error {
	m.mu.Lock()
	if err := m.record("replace", id); err != nil {
		m.mu.Unlock()
		return err
	}
	hook := m.BeforeReplace
	m.mu.Unlock()

	if hook != nil {
		hook(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("replace %s: %w", id, store.ErrNotFound)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.docs[id] = data
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", id); err != nil {
		return err
	}
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	delete(m.docs, id)
	return nil
}
