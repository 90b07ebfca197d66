package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/jakechorley/overlap/pkg/core/calendar"
	"github.com/jakechorley/overlap/pkg/core/model"
)

// DefaultHorizonDays is how far ahead candidate dates are evaluated
const DefaultHorizonDays = 180

// CountAvailable returns how many participants can make the given date.
// Busy-mode participants are available unless marked in unavailable; free-mode
// participants are available only if marked in available. Marks left behind
// in the map that does not match a participant's current mode are ignored.
func CountAvailable(participants []model.Participant, unavailable, available model.DateMarks, date string) int {
	count := 0
	for _, p := range participants {
		switch p.EffectiveMode() {
		case model.ModeFree:
			if available.Has(date, p.ID) {
				count++
			}
		default:
			if !unavailable.Has(date, p.ID) {
				count++
			}
		}
	}
	return count
}

// Ratio returns the share of participants available. With no participants
// every date is vacuously open.
func Ratio(available, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(available) / float64(total)
}

// BestDates ranks every run of consecutive dates in the horizon starting at
// today's local midnight. Runs are split whenever the availability count
// changes, sorted by count descending then by start date ascending.
func BestDates(rec model.EventRecord, today time.Time, horizonDays int) []model.DateGroup {
	total := len(rec.Participants)
	if total == 0 {
		return nil
	}

	var groups []model.DateGroup
	var current *model.DateGroup

	for _, date := range calendar.Horizon(today, horizonDays) {
		available := CountAvailable(rec.Participants, rec.UnavailableDates, rec.AvailableDates, date)
		if available == 0 {
			continue
		}

		if current != nil && current.AvailableCount == available && follows(current.EndDate, date) {
			current.EndDate = date
			continue
		}

		if current != nil {
			groups = append(groups, *current)
		}
		current = &model.DateGroup{
			StartDate:         date,
			EndDate:           date,
			AvailableCount:    available,
			TotalParticipants: total,
		}
	}
	if current != nil {
		groups = append(groups, *current)
	}

	Rank(groups)
	return groups
}

// Rank sorts groups by available count descending, ties broken by the
// earliest start date. Zero-padded ISO dates compare correctly as strings.
func Rank(groups []model.DateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].AvailableCount != groups[j].AvailableCount {
			return groups[i].AvailableCount > groups[j].AvailableCount
		}
		return groups[i].StartDate < groups[j].StartDate
	})
}

// Top returns at most n leading groups
func Top(groups []model.DateGroup, n int) []model.DateGroup {
	if n < 0 || len(groups) <= n {
		return groups
	}
	return groups[:n]
}

// follows reports whether next is exactly one calendar day after prev
func follows(prev, next string) bool {
	expected, err := calendar.NextDay(prev)
	if err != nil {
		return false
	}
	return expected == next
}

// Label renders a group as a short human-readable range, e.g. "Mon 3 Jun" or "Mon 3 - Wed 5 Jun"
func Label(g model.DateGroup) string {
	start, err := calendar.Parse(g.StartDate)
	if err != nil {
		return g.StartDate
	}
	if g.StartDate == g.EndDate {
		return start.Format("Mon 2 Jan")
	}
	end, err := calendar.Parse(g.EndDate)
	if err != nil {
		return g.StartDate + " - " + g.EndDate
	}
	return fmt.Sprintf("%s - %s", start.Format("Mon 2"), end.Format("Mon 2 Jan"))
}

// Summary renders a group with its availability, e.g. "Mon 3 Jun: 2/3 available"
func Summary(g model.DateGroup) string {
	return fmt.Sprintf("%s: %d/%d available", Label(g), g.AvailableCount, g.TotalParticipants)
}
