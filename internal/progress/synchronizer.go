package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"prepsync/internal/logging"
	"prepsync/internal/service"
)

var (
	// ErrNotReady means the task has no progress record in the index yet.
	ErrNotReady = errors.New("task progress not ready")

	// ErrInFlight means a mutation for the same task has not settled yet.
	ErrInFlight = errors.New("task update already in progress")

	// ErrInvalidTransition means the task's current status does not allow
	// the requested change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPrepareFailed wraps a failed batch initialization.
	ErrPrepareFailed = errors.New("could not prepare your tasks")

	// ErrClosed means the synchronizer was closed while a call was in flight;
	// the call's result was discarded.
	ErrClosed = errors.New("synchronizer closed")
)

// State is the initialization state of a plan.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// planState is the per-plan synchronization state.
type planState struct {
	id    string
	index *Index

	// init moves idle -> initializing -> ready only by compare-and-swap;
	// a failed initialization moves it back to idle.
	init atomic.Int32

	// selfHealed is set once the missing-records recovery has been used.
	selfHealed atomic.Bool

	// synced is set once a list or batch response has populated the index.
	// Only then is a task absent from the index known to lack a record.
	synced atomic.Bool

	mu       sync.Mutex
	tasks    []service.Task
	week     int
	inflight map[TaskIdentity]struct{}
}

func newPlanState(id string) *planState {
	return &planState{
		id:       id,
		index:    NewIndex(),
		inflight: make(map[TaskIdentity]struct{}),
	}
}

func (p *planState) setTasks(tasks []service.Task) {
	if len(tasks) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append([]service.Task(nil), tasks...)
	p.week = tasks[0].WeekNumber
}

func (p *planState) knownTasks() ([]service.Task, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks, p.week
}

func (p *planState) findTask(id TaskIdentity) (service.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if IdentityOf(t) == id {
			return t, true
		}
	}
	return service.Task{}, false
}

func (p *planState) acquire(id TaskIdentity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *planState) release(id TaskIdentity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// Synchronizer guarantees every task of a weekly plan has exactly one
// server-side progress record and keeps a per-plan Index of them.
// Initialization runs at most once per plan for the synchronizer's lifetime
// unless it fails.
type Synchronizer struct {
	svc    service.Service
	logger *logging.Logger

	mu     sync.Mutex
	plans  map[string]*planState
	closed atomic.Bool
}

// NewSynchronizer creates a Synchronizer over svc.
func NewSynchronizer(svc service.Service, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Synchronizer{
		svc:    svc,
		logger: logger,
		plans:  make(map[string]*planState),
	}
}

func (s *Synchronizer) plan(planID string) *planState {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		p = newPlanState(planID)
		s.plans[planID] = p
	}
	return p
}

// Close detaches the synchronizer. Calls that settle afterwards discard
// their results and return ErrClosed.
func (s *Synchronizer) Close() {
	s.closed.Store(true)
}

// ReadIndex returns the index of a plan.
func (s *Synchronizer) ReadIndex(planID string) *Index {
	return s.plan(planID).index
}

// State returns the initialization state of a plan.
func (s *Synchronizer) State(planID string) State {
	return State(s.plan(planID).init.Load())
}

// EnsureInitialized issues one batch-initialize call for the plan's tasks
// unless one has already been attempted. Concurrent callers that lose the
// race return nil without a request. An empty task list is a no-op.
func (s *Synchronizer) EnsureInitialized(ctx context.Context, planID string, tasks []service.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	p := s.plan(planID)
	p.setTasks(tasks)

	if !p.init.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		s.logger.Debugf("plan %s: initialization already attempted", planID)
		return nil
	}
	return s.batchInitialize(ctx, p)
}

// batchInitialize must be called after p.init moved to StateInitializing.
func (s *Synchronizer) batchInitialize(ctx context.Context, p *planState) error {
	tasks, week := p.knownTasks()
	s.logger.Debugf("plan %s: batch-initializing %d tasks", p.id, len(tasks))

	records, err := s.svc.BatchInitialize(ctx, p.id, week, tasks, service.StatusNotStarted)
	if err != nil {
		p.init.Store(int32(StateIdle))
		if s.closed.Load() {
			return ErrClosed
		}
		s.logger.Warnf("plan %s: batch initialize failed: %v", p.id, err)
		return fmt.Errorf("%w: %w", ErrPrepareFailed, err)
	}
	p.init.Store(int32(StateReady))
	if s.closed.Load() {
		return ErrClosed
	}

	p.index.Replace(records, week)
	p.synced.Store(true)
	if len(records) < len(tasks) {
		s.logger.Warnf("plan %s: server initialized %d of %d tasks", p.id, len(records), len(tasks))
	}
	return nil
}

// Load fetches the plan's records and rebuilds its index. When the server
// reports no records and no initialization has been attempted, it runs the
// batch initialization instead; this happens at most once per plan. Any
// later missing-records signal is returned as service.ErrMissingRecords.
// tasks may be nil when EnsureInitialized already supplied them.
func (s *Synchronizer) Load(ctx context.Context, planID string, tasks []service.Task) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p := s.plan(planID)
	p.setTasks(tasks)

	records, err := s.svc.ListProgress(ctx, planID)
	if s.closed.Load() {
		return ErrClosed
	}
	if errors.Is(err, service.ErrMissingRecords) {
		return s.selfHeal(ctx, p)
	}
	if err != nil {
		return err
	}

	_, week := p.knownTasks()
	p.index.Replace(records, week)
	p.synced.Store(true)
	return nil
}

func (s *Synchronizer) selfHeal(ctx context.Context, p *planState) error {
	switch State(p.init.Load()) {
	case StateInitializing:
		// The running initialization will populate the index.
		return nil
	case StateReady:
		return fmt.Errorf("plan %s: %w", p.id, service.ErrMissingRecords)
	}

	known, _ := p.knownTasks()
	if len(known) == 0 {
		return fmt.Errorf("plan %s: %w", p.id, service.ErrMissingRecords)
	}
	if !p.selfHealed.CompareAndSwap(false, true) {
		return fmt.Errorf("plan %s: %w", p.id, service.ErrMissingRecords)
	}
	if !p.init.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		return nil
	}
	s.logger.Infof("plan %s: no progress records on server, initializing", p.id)
	return s.batchInitialize(ctx, p)
}

// Start moves a not-started task to in-progress.
func (s *Synchronizer) Start(ctx context.Context, planID string, id TaskIdentity) error {
	return s.transition(ctx, planID, id, service.StatusInProgress, nil, func(cur service.Status) bool {
		return cur == service.StatusNotStarted
	})
}

// Complete moves a not-started or in-progress task to completed.
func (s *Synchronizer) Complete(ctx context.Context, planID string, id TaskIdentity) error {
	return s.transition(ctx, planID, id, service.StatusCompleted, nil, func(cur service.Status) bool {
		return cur == service.StatusNotStarted || cur == service.StatusInProgress
	})
}

// UpdateStatus sets any status and optional progress data. A plan task
// missing from an index that a load or initialization has populated gets a
// record created for it, carrying the progress data.
func (s *Synchronizer) UpdateStatus(ctx context.Context, planID string, id TaskIdentity, status service.Status, progressData json.RawMessage) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	p := s.plan(planID)
	if _, ok := p.index.Lookup(id); !ok && p.synced.Load() {
		if task, known := p.findTask(id); known {
			return s.create(ctx, p, id, task, status, progressData)
		}
	}
	return s.transition(ctx, planID, id, status, progressData, nil)
}

func (s *Synchronizer) create(ctx context.Context, p *planState, id TaskIdentity, task service.Task, status service.Status, progressData json.RawMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !p.acquire(id) {
		return ErrInFlight
	}
	defer p.release(id)

	rec, err := s.svc.CreateRecord(ctx, p.id, task, status, progressData)
	if s.closed.Load() {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	_, week := p.knownTasks()
	p.index.Merge([]service.Record{rec}, week)
	return nil
}

func (s *Synchronizer) transition(ctx context.Context, planID string, id TaskIdentity, target service.Status, progressData json.RawMessage, allowed func(service.Status) bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	p := s.plan(planID)
	if !p.acquire(id) {
		return ErrInFlight
	}
	defer p.release(id)

	entry, ok := p.index.Lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotReady)
	}
	if allowed != nil && !allowed(entry.Status) {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, entry.Status)
	}

	rec, err := s.svc.UpdateRecord(ctx, entry.ProgressID, service.Update{Status: &target, ProgressData: progressData})
	if s.closed.Load() {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	if !rec.Status.Valid() {
		rec.Status = target
	}
	if !p.index.PatchByID(rec) {
		s.logger.Warnf("plan %s: updated record %s is not in the index", planID, rec.ID)
	}
	return nil
}
