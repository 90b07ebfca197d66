package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

var _ store.DocumentStore = (*DB)(nil)

// Latest retrieves the current body of an event
func (d *DB) Latest(ctx context.Context, id string) (*model.Envelope, error) {
	var body []byte
	err := d.pool.QueryRow(ctx, `SELECT body FROM events WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	var rec model.EventRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	rec.Normalize()
	return &model.Envelope{Record: rec, Metadata: model.Metadata{ID: id}}, nil
}

// Create inserts a new event under a random id
func (d *DB) Create(ctx context.Context, rec model.EventRecord) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	id := uuid.NewString()
	if _, err := d.pool.Exec(ctx, `
		INSERT INTO events (id, body)
		VALUES ($1, $2)
	`, id, body); err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

// Replace overwrites the body of an existing event
func (d *DB) Replace(ctx context.Context, id string, rec model.EventRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	tag, err := d.pool.Exec(ctx, `
		UPDATE events SET body = $2, updated_at = NOW() WHERE id = $1
	`, id, body)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete removes an event permanently
func (d *DB) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	return nil
}
