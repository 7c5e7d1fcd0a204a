// Package progress keeps the local view of a weekly plan's task progress in
// step with the server's progress records.
package progress

import (
	"fmt"
	"sort"
	"sync"

	"prepsync/internal/service"
)

// TaskIdentity correlates a plan task with its progress record before the
// record id is known. Fields compare exactly; titles are not normalised.
type TaskIdentity struct {
	Week  int
	Day   int
	Title string
}

func (id TaskIdentity) String() string {
	return fmt.Sprintf("w%d d%d %q", id.Week, id.Day, id.Title)
}

// IdentityOf returns the identity of a plan task.
func IdentityOf(t service.Task) TaskIdentity {
	return TaskIdentity{Week: t.WeekNumber, Day: t.DayNumber, Title: t.Title}
}

// Entry is what the index knows about one task.
type Entry struct {
	ProgressID string
	Status     service.Status
}

// Row is one index entry with its identity, for listing.
type Row struct {
	TaskIdentity
	Entry
}

// Index maps task identities to progress records for one weekly plan.
// It is safe for concurrent use; reads reflect the last completed write.
type Index struct {
	mu      sync.RWMutex
	entries map[TaskIdentity]Entry
	byID    map[string]TaskIdentity
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[TaskIdentity]Entry),
		byID:    make(map[string]TaskIdentity),
	}
}

// identityOfRecord derives the identity from a server record. A record
// without a week number takes defaultWeek.
func identityOfRecord(r service.Record, defaultWeek int) TaskIdentity {
	week := int(r.WeekNumber)
	if week == 0 {
		week = defaultWeek
	}
	day := int(r.DayNumber)
	if day == 0 {
		day = 1
	}
	return TaskIdentity{Week: week, Day: day, Title: r.TaskTitle}
}

// Replace discards all entries and loads records.
func (x *Index) Replace(records []service.Record, defaultWeek int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.entries = make(map[TaskIdentity]Entry, len(records))
	x.byID = make(map[string]TaskIdentity, len(records))
	for _, r := range records {
		x.putLocked(r, defaultWeek)
	}
}

// Merge adds or overwrites entries for records, keeping the rest.
func (x *Index) Merge(records []service.Record, defaultWeek int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range records {
		x.putLocked(r, defaultWeek)
	}
}

func (x *Index) putLocked(r service.Record, defaultWeek int) {
	if r.ID == "" {
		return
	}
	id := identityOfRecord(r, defaultWeek)
	if old, ok := x.entries[id]; ok && old.ProgressID != r.ID {
		delete(x.byID, old.ProgressID)
	}
	x.entries[id] = Entry{ProgressID: r.ID, Status: r.Status}
	x.byID[r.ID] = id
}

// PatchByID updates the status of the entry holding record.ID. It reports
// false when no entry holds that id.
func (x *Index) PatchByID(record service.Record) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	id, ok := x.byID[record.ID]
	if !ok {
		return false
	}
	e := x.entries[id]
	if record.Status.Valid() {
		e.Status = record.Status
	}
	x.entries[id] = e
	return true
}

// Lookup returns the entry for id.
func (x *Index) Lookup(id TaskIdentity) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	return e, ok
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Snapshot returns all entries ordered by week, day and title.
func (x *Index) Snapshot() []Row {
	x.mu.RLock()
	rows := make([]Row, 0, len(x.entries))
	for id, e := range x.entries {
		rows = append(rows, Row{TaskIdentity: id, Entry: e})
	}
	x.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Title < b.Title
	})
	return rows
}
