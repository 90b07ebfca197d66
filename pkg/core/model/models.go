package model

import (
	"slices"

	"golang.org/x/text/cases"
)

// Mode selects which date map holds a participant's marks
type Mode string

const (
	// ModeBusy means a mark is a date the participant cannot make
	ModeBusy Mode = "busy"
	// ModeFree means a mark is a date the participant can make
	ModeFree Mode = "free"
)

func (m Mode) IsValid() bool {
	return m == ModeBusy || m == ModeFree
}

// OrDefault maps the empty mode (records written before modes existed) to ModeBusy
func (m Mode) OrDefault() Mode {
	if m == "" {
		return ModeBusy
	}
	return m
}

// Colors is the display palette handed out to participants in join order
var Colors = []string{"blue", "rose", "amber", "emerald", "indigo", "fuchsia"}

// ColorFor returns the palette entry for the n-th participant
func ColorFor(n int) string {
	return Colors[n%len(Colors)]
}

// Participant represents one human taking part in an event
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Avatar string `json:"avatar,omitempty"`
	Mode   Mode   `json:"mode,omitempty"`
}

// EffectiveMode returns the participant's mode with the legacy default applied
func (p Participant) EffectiveMode() Mode {
	return p.Mode.OrDefault()
}

// EventRecord is the shared document every client reads and writes in full
type EventRecord struct {
	Name             string        `json:"eventName"`
	Description      string        `json:"eventDescription,omitempty"`
	CoverImage       string        `json:"eventImage,omitempty"`
	AdminID          string        `json:"adminId,omitempty"`
	Participants     []Participant `json:"users"`
	UnavailableDates DateMarks     `json:"unavailableDates"`
	AvailableDates   DateMarks     `json:"availableDates,omitempty"`
}

// Clone returns a deep copy so a transform can never alias another client's view
func (r EventRecord) Clone() EventRecord {
	out := r
	out.Participants = slices.Clone(r.Participants)
	out.UnavailableDates = r.UnavailableDates.Clone()
	out.AvailableDates = r.AvailableDates.Clone()
	return out
}

// Normalize replaces nil collections with empty ones, matching records
// created by older clients that omitted availableDates entirely
func (r *EventRecord) Normalize() {
	if r.Participants == nil {
		r.Participants = []Participant{}
	}
	if r.UnavailableDates == nil {
		r.UnavailableDates = DateMarks{}
	}
	if r.AvailableDates == nil {
		r.AvailableDates = DateMarks{}
	}
}

// IsAdmin reports whether id created the event
func (r EventRecord) IsAdmin(id string) bool {
	return id != "" && r.AdminID == id
}

// Marks returns the date map that backs the given mode.
// Both maps share one mutation path so busy and free semantics cannot drift.
func (r *EventRecord) Marks(mode Mode) DateMarks {
	r.Normalize()
	if mode.OrDefault() == ModeFree {
		return r.AvailableDates
	}
	return r.UnavailableDates
}

// Participant returns the participant with the given id and its index, or -1
func (r EventRecord) Participant(id string) (Participant, int) {
	for i, p := range r.Participants {
		if p.ID == id {
			return p, i
		}
	}
	return Participant{}, -1
}

// SameName compares display names case-insensitively using Unicode case folding.
// A Caser holds state, so one is built per call.
func SameName(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// FindByName returns the first participant whose name matches case-insensitively
func (r EventRecord) FindByName(name string) (Participant, bool) {
	for _, p := range r.Participants {
		if SameName(p.Name, name) {
			return p, true
		}
	}
	return Participant{}, false
}

// UpsertParticipant replaces the participant with the same id in place, or appends it
func (r *EventRecord) UpsertParticipant(p Participant) {
	if _, idx := r.Participant(p.ID); idx >= 0 {
		r.Participants[idx] = p
		return
	}
	r.Participants = append(r.Participants, p)
}

// RemoveParticipant drops the participant and purges their id from both date maps
func (r *EventRecord) RemoveParticipant(id string) {
	r.Normalize()
	r.Participants = slices.DeleteFunc(r.Participants, func(p Participant) bool {
		return p.ID == id
	})
	r.UnavailableDates.Purge(id)
	r.AvailableDates.Purge(id)
}

// ParticipantNames returns display names in join order
func (r EventRecord) ParticipantNames() []string {
	names := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		names[i] = p.Name
	}
	return names
}

// DateGroup is a maximal run of consecutive dates sharing one availability count
type DateGroup struct {
	StartDate         string `json:"startDate"`
	EndDate           string `json:"endDate"`
	AvailableCount    int    `json:"availableCount"`
	TotalParticipants int    `json:"totalParticipants"`
}

// Envelope wraps a record the way the document store returns it
type Envelope struct {
	Record   EventRecord `json:"record"`
	Metadata Metadata    `json:"metadata"`
}

// Metadata carries store-assigned attributes of a document
type Metadata struct {
	ID string `json:"id"`
}
