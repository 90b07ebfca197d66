package model

import "fmt"

// Transform mutates a private copy of an event record. The synchronizer
// applies the same transform to its optimistic view and to the record it
// fetches immediately before writing, so a transform must depend only on
// the record it is given.
type Transform func(rec *EventRecord) error

// Identity leaves the record unchanged
func Identity() Transform {
	return func(rec *EventRecord) error { return nil }
}

// Chain applies transforms in order, stopping at the first error
func Chain(transforms ...Transform) Transform {
	return func(rec *EventRecord) error {
		for _, t := range transforms {
			if err := t(rec); err != nil {
				return err
			}
		}
		return nil
	}
}

// UpsertParticipant replaces the participant with the same id, or appends it
func UpsertParticipant(p Participant) Transform {
	return func(rec *EventRecord) error {
		rec.Normalize()
		rec.UpsertParticipant(p)
		return nil
	}
}

// RemoveParticipant drops a participant and every mark they own
func RemoveParticipant(id string) Transform {
	return func(rec *EventRecord) error {
		rec.RemoveParticipant(id)
		return nil
	}
}

// SetMark marks or unmarks one date for a participant in the map of the given mode
func SetMark(id string, mode Mode, date string, marked bool) Transform {
	return func(rec *EventRecord) error {
		rec.Marks(mode).Set(date, id, marked)
		return nil
	}
}

// SetMarks applies the same mark state to every listed date. Dates not
// listed are left exactly as they are in the record being transformed.
func SetMarks(id string, mode Mode, dates []string, marked bool) Transform {
	return func(rec *EventRecord) error {
		marks := rec.Marks(mode)
		for _, date := range dates {
			marks.Set(date, id, marked)
		}
		return nil
	}
}

// RequireParticipant fails when id is not part of the record
func RequireParticipant(id string) Transform {
	return func(rec *EventRecord) error {
		if _, idx := rec.Participant(id); idx < 0 {
			return fmt.Errorf("%w: participant %s is not part of this event", ErrValidation, id)
		}
		return nil
	}
}
