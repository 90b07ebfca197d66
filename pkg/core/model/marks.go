package model

import (
	"slices"
	"sort"
)

// DateMarks maps an ISO date to the participant ids marked on it.
// Empty buckets are never kept: a date with no marks is absent from the map.
type DateMarks map[string][]string

// Clone deep-copies the map and every bucket
func (m DateMarks) Clone() DateMarks {
	if m == nil {
		return nil
	}
	out := make(DateMarks, len(m))
	for date, ids := range m {
		out[date] = slices.Clone(ids)
	}
	return out
}

// Has reports whether id is marked on date
func (m DateMarks) Has(date, id string) bool {
	return slices.Contains(m[date], id)
}

// Add marks id on date, keeping at most one entry per id
func (m DateMarks) Add(date, id string) {
	if m.Has(date, id) {
		return
	}
	m[date] = append(slices.Clone(m[date]), id)
}

// Remove unmarks id on date and deletes the bucket once it is empty
func (m DateMarks) Remove(date, id string) {
	bucket, ok := m[date]
	if !ok {
		return
	}
	filtered := slices.DeleteFunc(slices.Clone(bucket), func(v string) bool { return v == id })
	if len(filtered) == 0 {
		delete(m, date)
		return
	}
	m[date] = filtered
}

// Set marks or unmarks id on date
func (m DateMarks) Set(date, id string, marked bool) {
	if marked {
		m.Add(date, id)
	} else {
		m.Remove(date, id)
	}
}

// Purge removes id from every bucket
func (m DateMarks) Purge(id string) {
	for date := range m {
		m.Remove(date, id)
	}
}

// DatesFor returns the sorted dates on which id is marked
func (m DateMarks) DatesFor(id string) []string {
	var dates []string
	for date, ids := range m {
		if slices.Contains(ids, id) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}
