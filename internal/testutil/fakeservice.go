// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"prepsync/internal/service"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = &service.APIError{Status: 404, Message: "not found"}

// Calls counts FakeService invocations.
type Calls struct {
	List   int
	Batch  int
	Create int
	Update int
}

// FakeService is an in-memory implementation of service.Service for testing.
// Records are unique per (plan, week, day, title), as on the real server.
type FakeService struct {
	mu      sync.Mutex
	records map[string]*service.Record // id -> record
	order   []string
	nextID  int
	calls   Calls
	batches [][]service.Task

	// Error injection for testing
	ListErr   error
	BatchErr  error
	CreateErr error
	UpdateErr error

	// ForceMissing makes ListProgress report no records.
	ForceMissing bool

	// BatchLimit caps how many records BatchInitialize handles; 0 means no cap.
	BatchLimit int

	// Gate, when set, blocks BatchInitialize and UpdateRecord until closed.
	Gate chan struct{}
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{records: make(map[string]*service.Record)}
}

// Calls returns a snapshot of the call counters.
func (f *FakeService) Calls() Calls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Batches returns the task lists sent to BatchInitialize.
func (f *FakeService) Batches() [][]service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]service.Task(nil), f.batches...)
}

// AddRecord seeds a record and returns its id.
func (f *FakeService) AddRecord(planID string, task service.Task, status service.Status) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(planID, task, status).ID
}

// Record returns a copy of the record with id.
func (f *FakeService) Record(id string) (service.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return service.Record{}, false
	}
	return *r, true
}

// PlanRecords returns copies of a plan's records in creation order.
func (f *FakeService) PlanRecords(planID string) []service.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.planRecordsLocked(planID)
}

func (f *FakeService) planRecordsLocked(planID string) []service.Record {
	var out []service.Record
	for _, id := range f.order {
		if r := f.records[id]; r.WeeklyPlanID == planID {
			out = append(out, *r)
		}
	}
	return out
}

func (f *FakeService) findLocked(planID string, task service.Task) *service.Record {
	for _, id := range f.order {
		r := f.records[id]
		if r.WeeklyPlanID == planID && int(r.WeekNumber) == task.WeekNumber &&
			int(r.DayNumber) == task.DayNumber && r.TaskTitle == task.Title {
			return r
		}
	}
	return nil
}

func (f *FakeService) insertLocked(planID string, task service.Task, status service.Status) *service.Record {
	f.nextID++
	r := &service.Record{
		ID:           fmt.Sprintf("rec-%d", f.nextID),
		WeeklyPlanID: planID,
		WeekNumber:   service.Number(task.WeekNumber),
		DayNumber:    service.Number(task.DayNumber),
		TaskTitle:    task.Title,
		Status:       status,
	}
	f.records[r.ID] = r
	f.order = append(f.order, r.ID)
	return r
}

func (f *FakeService) wait(ctx context.Context) error {
	if f.Gate == nil {
		return nil
	}
	select {
	case <-f.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListProgress implements service.Service.
func (f *FakeService) ListProgress(ctx context.Context, planID string) ([]service.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.List++

	if f.ListErr != nil {
		return nil, f.ListErr
	}
	recs := f.planRecordsLocked(planID)
	if f.ForceMissing || len(recs) == 0 {
		return nil, service.ErrMissingRecords
	}
	return recs, nil
}

// BatchInitialize implements service.Service. Returned records omit the
// week number, matching the real server's response.
func (f *FakeService) BatchInitialize(ctx context.Context, planID string, weekNumber int, tasks []service.Task, initial service.Status) ([]service.Record, error) {
	f.mu.Lock()
	f.calls.Batch++
	f.batches = append(f.batches, append([]service.Task(nil), tasks...))
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BatchErr != nil {
		return nil, f.BatchErr
	}

	var out []service.Record
	for i, t := range tasks {
		if f.BatchLimit > 0 && i >= f.BatchLimit {
			break
		}
		r := f.findLocked(planID, t)
		if r == nil {
			r = f.insertLocked(planID, t, initial)
		}
		c := *r
		c.WeekNumber = 0
		out = append(out, c)
	}
	return out, nil
}

// CreateRecord implements service.Service.
func (f *FakeService) CreateRecord(ctx context.Context, planID string, task service.Task, initial service.Status, progressData json.RawMessage) (service.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Create++

	if f.CreateErr != nil {
		return service.Record{}, f.CreateErr
	}
	if f.findLocked(planID, task) != nil {
		return service.Record{}, &service.APIError{Status: 409, Message: "duplicate progress record"}
	}
	r := f.insertLocked(planID, task, initial)
	if progressData != nil {
		r.ProgressData = append(json.RawMessage(nil), progressData...)
	}
	return *r, nil
}

// UpdateRecord implements service.Service.
func (f *FakeService) UpdateRecord(ctx context.Context, recordID string, update service.Update) (service.Record, error) {
	f.mu.Lock()
	f.calls.Update++
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return service.Record{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return service.Record{}, f.UpdateErr
	}
	r, ok := f.records[recordID]
	if !ok {
		return service.Record{}, ErrNotFound
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.ProgressData != nil {
		r.ProgressData = append([]byte(nil), update.ProgressData...)
	}
	return *r, nil
}

// IsNotFound reports whether err is the fake's not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
