// Package redisstore keeps event documents as JSON strings in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

const keyPrefix = "event:"

// Store is a DocumentStore over a Redis connection
type Store struct {
	conn *redis.Client
}

var _ store.DocumentStore = (*Store)(nil)

// New connects to addr and pings it
func New(ctx context.Context, addr, password string) (*Store, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Store{conn: conn}, nil
}

// NewWithClient wraps an existing connection
func NewWithClient(conn *redis.Client) *Store {
	return &Store{conn: conn}
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func key(id string) string {
	return keyPrefix + id
}

func (s *Store) Latest(ctx context.Context, id string) (*model.Envelope, error) {
	data, err := s.conn.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	var rec model.EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	rec.Normalize()
	return &model.Envelope{Record: rec, Metadata: model.Metadata{ID: id}}, nil
}

func (s *Store) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	id := uuid.NewString()
	ok, err := s.conn.SetNX(ctx, key(id), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("event id %s already taken", id)
	}
	return id, nil
}

// Replace only overwrites keys that still exist, so a write racing a
// delete reports ErrNotFound instead of resurrecting the event.
func (s *Store) Replace(ctx context.Context, id string, rec model.EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	ok, err := s.conn.SetXX(ctx, key(id), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setxx %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.conn.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	return nil
}
