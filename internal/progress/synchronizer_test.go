package progress_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepsync/internal/progress"
	"prepsync/internal/service"
	"prepsync/internal/testutil"
)

const planID = "plan-7"

func weekTasks(week, n int) []service.Task {
	tasks := make([]service.Task, n)
	for i := range tasks {
		tasks[i] = service.Task{
			Title:      fmt.Sprintf("Task %d", i+1),
			DayNumber:  i%3 + 1,
			WeekNumber: week,
			Skill:      "reading",
		}
	}
	return tasks
}

func newReady(t *testing.T, tasks []service.Task) (*progress.Synchronizer, *testutil.FakeService) {
	t.Helper()
	fake := testutil.NewFakeService()
	s := progress.NewSynchronizer(fake, nil)
	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))
	return s, fake
}

func TestEnsureInitialized_OneRecordPerTask(t *testing.T) {
	tasks := weekTasks(2, 5)
	s, fake := newReady(t, tasks)

	idx := s.ReadIndex(planID)
	require.Equal(t, 5, idx.Len())
	for _, task := range tasks {
		e, ok := idx.Lookup(progress.IdentityOf(task))
		require.True(t, ok, "missing %s", progress.IdentityOf(task))
		assert.NotEmpty(t, e.ProgressID)
		assert.Equal(t, service.StatusNotStarted, e.Status)
	}
	assert.Equal(t, progress.StateReady, s.State(planID))
	assert.Equal(t, 1, fake.Calls().Batch)
	assert.Len(t, fake.PlanRecords(planID), 5)
}

func TestEnsureInitialized_RunsOnce(t *testing.T) {
	tasks := weekTasks(1, 3)
	s, fake := newReady(t, tasks)

	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))
	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))

	assert.Equal(t, 1, fake.Calls().Batch)
}

func TestEnsureInitialized_ConcurrentCallersShareOneRequest(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.Gate = make(chan struct{})
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 4)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EnsureInitialized(context.Background(), planID, tasks)
		}(i)
	}

	require.Eventually(t, func() bool { return fake.Calls().Batch == 1 }, time.Second, 5*time.Millisecond)
	close(fake.Gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, fake.Calls().Batch)
	assert.Equal(t, 4, s.ReadIndex(planID).Len())
}

func TestEnsureInitialized_EmptyTaskListIsNoop(t *testing.T) {
	fake := testutil.NewFakeService()
	s := progress.NewSynchronizer(fake, nil)

	require.NoError(t, s.EnsureInitialized(context.Background(), planID, nil))

	assert.Equal(t, 0, fake.Calls().Batch)
	assert.Equal(t, progress.StateIdle, s.State(planID))
}

func TestEnsureInitialized_FailureAllowsRetry(t *testing.T) {
	fake := testutil.NewFakeService()
	boom := &service.APIError{Status: 500, Message: "boom"}
	fake.BatchErr = boom
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 2)

	err := s.EnsureInitialized(context.Background(), planID, tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, progress.ErrPrepareFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, progress.StateIdle, s.State(planID))
	assert.Equal(t, 0, s.ReadIndex(planID).Len())

	fake.BatchErr = nil
	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))
	assert.Equal(t, 2, fake.Calls().Batch)
	assert.Equal(t, 2, s.ReadIndex(planID).Len())
}

func TestEnsureInitialized_PartialResponse(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.BatchLimit = 3
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 5)

	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))
	assert.Equal(t, 3, s.ReadIndex(planID).Len())

	missing := progress.IdentityOf(tasks[4])
	err := s.Start(context.Background(), planID, missing)
	assert.ErrorIs(t, err, progress.ErrNotReady)
	assert.Equal(t, 0, fake.Calls().Update)
}

func TestStart_PatchesIndex(t *testing.T) {
	tasks := weekTasks(1, 3)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[1])

	require.NoError(t, s.Start(context.Background(), planID, id))

	e, ok := s.ReadIndex(planID).Lookup(id)
	require.True(t, ok)
	assert.Equal(t, service.StatusInProgress, e.Status)
	rec, ok := fake.Record(e.ProgressID)
	require.True(t, ok)
	assert.Equal(t, service.StatusInProgress, rec.Status)
	assert.Equal(t, 1, fake.Calls().Update)

	// Other entries are untouched.
	other, _ := s.ReadIndex(planID).Lookup(progress.IdentityOf(tasks[0]))
	assert.Equal(t, service.StatusNotStarted, other.Status)
}

func TestStart_OnlyFromNotStarted(t *testing.T) {
	tasks := weekTasks(1, 1)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[0])

	require.NoError(t, s.Start(context.Background(), planID, id))
	err := s.Start(context.Background(), planID, id)

	assert.ErrorIs(t, err, progress.ErrInvalidTransition)
	assert.Equal(t, 1, fake.Calls().Update)
}

func TestComplete_FromInProgressAndNotStarted(t *testing.T) {
	tasks := weekTasks(1, 2)
	s, _ := newReady(t, tasks)
	ctx := context.Background()
	a, b := progress.IdentityOf(tasks[0]), progress.IdentityOf(tasks[1])

	require.NoError(t, s.Start(ctx, planID, a))
	require.NoError(t, s.Complete(ctx, planID, a))
	require.NoError(t, s.Complete(ctx, planID, b))

	for _, id := range []progress.TaskIdentity{a, b} {
		e, _ := s.ReadIndex(planID).Lookup(id)
		assert.Equal(t, service.StatusCompleted, e.Status)
	}
	assert.ErrorIs(t, s.Complete(ctx, planID, a), progress.ErrInvalidTransition)
}

func TestStart_DuplicateWhileInFlight(t *testing.T) {
	tasks := weekTasks(1, 2)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[0])
	fake.Gate = make(chan struct{})

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background(), planID, id) }()
	require.Eventually(t, func() bool { return fake.Calls().Update == 1 }, time.Second, 5*time.Millisecond)

	err := s.Start(context.Background(), planID, id)
	assert.ErrorIs(t, err, progress.ErrInFlight)

	close(fake.Gate)
	require.NoError(t, <-first)
	assert.Equal(t, 1, fake.Calls().Update)

	e, _ := s.ReadIndex(planID).Lookup(id)
	assert.Equal(t, service.StatusInProgress, e.Status)
}

func TestStart_DifferentTasksDoNotBlockEachOther(t *testing.T) {
	tasks := weekTasks(1, 2)
	s, fake := newReady(t, tasks)
	fake.Gate = make(chan struct{})

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background(), planID, progress.IdentityOf(tasks[0])) }()
	require.Eventually(t, func() bool { return fake.Calls().Update == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.Start(context.Background(), planID, progress.IdentityOf(tasks[1])) }()
	require.Eventually(t, func() bool { return fake.Calls().Update == 2 }, time.Second, 5*time.Millisecond)

	close(fake.Gate)
	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
}

func TestStart_ServerErrorLeavesIndex(t *testing.T) {
	tasks := weekTasks(1, 1)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[0])
	fake.UpdateErr = &service.APIError{Status: 500, Message: "down"}

	err := s.Start(context.Background(), planID, id)
	require.Error(t, err)
	assert.Equal(t, 500, service.StatusOf(err))

	e, _ := s.ReadIndex(planID).Lookup(id)
	assert.Equal(t, service.StatusNotStarted, e.Status)

	// The guard was released.
	fake.UpdateErr = nil
	assert.NoError(t, s.Start(context.Background(), planID, id))
}

func TestUpdateStatus_WithProgressData(t *testing.T) {
	tasks := weekTasks(1, 1)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[0])
	data := json.RawMessage(`{"score":7}`)

	require.NoError(t, s.UpdateStatus(context.Background(), planID, id, service.StatusCompleted, data))

	e, _ := s.ReadIndex(planID).Lookup(id)
	assert.Equal(t, service.StatusCompleted, e.Status)
	rec, _ := fake.Record(e.ProgressID)
	assert.JSONEq(t, `{"score":7}`, string(rec.ProgressData))
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	tasks := weekTasks(1, 1)
	s, fake := newReady(t, tasks)

	err := s.UpdateStatus(context.Background(), planID, progress.IdentityOf(tasks[0]), "paused", nil)

	assert.ErrorIs(t, err, progress.ErrInvalidTransition)
	assert.Equal(t, 0, fake.Calls().Update)
}

func TestUpdateStatus_CreatesMissingRecord(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.BatchLimit = 1
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(3, 2)
	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))

	id := progress.IdentityOf(tasks[1])
	require.NoError(t, s.UpdateStatus(context.Background(), planID, id, service.StatusInProgress, nil))

	e, ok := s.ReadIndex(planID).Lookup(id)
	require.True(t, ok)
	assert.Equal(t, service.StatusInProgress, e.Status)
	assert.Equal(t, 1, fake.Calls().Create)
	assert.Equal(t, 0, fake.Calls().Update)
}

func TestUpdateStatus_UnknownTaskNotReady(t *testing.T) {
	s, fake := newReady(t, weekTasks(1, 1))

	err := s.UpdateStatus(context.Background(), planID, progress.TaskIdentity{Week: 1, Day: 9, Title: "Nope"}, service.StatusCompleted, nil)

	assert.ErrorIs(t, err, progress.ErrNotReady)
	assert.Equal(t, 0, fake.Calls().Create)
}

func TestUpdateStatus_CreatedRecordCarriesProgressData(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.BatchLimit = 1
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(3, 2)
	require.NoError(t, s.EnsureInitialized(context.Background(), planID, tasks))

	id := progress.IdentityOf(tasks[1])
	require.NoError(t, s.UpdateStatus(context.Background(), planID, id, service.StatusCompleted, json.RawMessage(`{"score":7}`)))

	e, ok := s.ReadIndex(planID).Lookup(id)
	require.True(t, ok)
	assert.Equal(t, service.StatusCompleted, e.Status)
	rec, ok := fake.Record(e.ProgressID)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":7}`, string(rec.ProgressData))
	assert.Equal(t, 1, fake.Calls().Create)
}

func TestUpdateStatus_CreatesMissingRecordAfterLoad(t *testing.T) {
	fake := testutil.NewFakeService()
	tasks := weekTasks(3, 2)
	fake.AddRecord(planID, tasks[0], service.StatusCompleted)
	s := progress.NewSynchronizer(fake, nil)
	require.NoError(t, s.Load(context.Background(), planID, tasks))
	require.Equal(t, progress.StateIdle, s.State(planID))

	id := progress.IdentityOf(tasks[1])
	require.NoError(t, s.UpdateStatus(context.Background(), planID, id, service.StatusInProgress, nil))

	e, ok := s.ReadIndex(planID).Lookup(id)
	require.True(t, ok)
	assert.Equal(t, service.StatusInProgress, e.Status)
	assert.Equal(t, 1, fake.Calls().Create)
	assert.Equal(t, 0, fake.Calls().Batch)
	assert.Len(t, fake.PlanRecords(planID), 2)
}

func TestUpdateStatus_NoCreateBeforeSync(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.ListErr = errors.New("offline")
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 1)
	require.Error(t, s.Load(context.Background(), planID, tasks))

	err := s.UpdateStatus(context.Background(), planID, progress.IdentityOf(tasks[0]), service.StatusCompleted, nil)

	assert.ErrorIs(t, err, progress.ErrNotReady)
	assert.Equal(t, 0, fake.Calls().Create)
}

func TestUpdateStatus_CreateAfterClose(t *testing.T) {
	fake := testutil.NewFakeService()
	tasks := weekTasks(1, 2)
	fake.AddRecord(planID, tasks[0], service.StatusNotStarted)
	s := progress.NewSynchronizer(fake, nil)
	require.NoError(t, s.Load(context.Background(), planID, tasks))

	s.Close()
	err := s.UpdateStatus(context.Background(), planID, progress.IdentityOf(tasks[1]), service.StatusInProgress, nil)

	assert.ErrorIs(t, err, progress.ErrClosed)
	assert.Equal(t, 0, fake.Calls().Create)
}

func TestLoad_ReplacesIndexFromServer(t *testing.T) {
	fake := testutil.NewFakeService()
	tasks := weekTasks(1, 2)
	fake.AddRecord(planID, tasks[0], service.StatusCompleted)
	fake.AddRecord(planID, tasks[1], service.StatusInProgress)
	s := progress.NewSynchronizer(fake, nil)

	require.NoError(t, s.Load(context.Background(), planID, tasks))

	e, ok := s.ReadIndex(planID).Lookup(progress.IdentityOf(tasks[0]))
	require.True(t, ok)
	assert.Equal(t, service.StatusCompleted, e.Status)
	assert.Equal(t, 0, fake.Calls().Batch)
}

func TestLoad_SelfHealsMissingRecordsOnce(t *testing.T) {
	fake := testutil.NewFakeService()
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 3)

	require.NoError(t, s.Load(context.Background(), planID, tasks))
	assert.Equal(t, 1, fake.Calls().Batch)
	assert.Equal(t, 3, s.ReadIndex(planID).Len())
	assert.Equal(t, progress.StateReady, s.State(planID))

	fake.ForceMissing = true
	err := s.Load(context.Background(), planID, tasks)
	assert.ErrorIs(t, err, service.ErrMissingRecords)
	assert.Equal(t, 1, fake.Calls().Batch)
}

func TestLoad_SelfHealNotRepeatedAfterFailure(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.BatchErr = errors.New("boom")
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 2)

	err := s.Load(context.Background(), planID, tasks)
	assert.ErrorIs(t, err, progress.ErrPrepareFailed)

	fake.BatchErr = nil
	err = s.Load(context.Background(), planID, tasks)
	assert.ErrorIs(t, err, service.ErrMissingRecords)
	assert.Equal(t, 1, fake.Calls().Batch)
}

func TestLoad_MissingRecordsWithoutTasks(t *testing.T) {
	fake := testutil.NewFakeService()
	s := progress.NewSynchronizer(fake, nil)

	err := s.Load(context.Background(), planID, nil)

	assert.ErrorIs(t, err, service.ErrMissingRecords)
	assert.Equal(t, 0, fake.Calls().Batch)
}

func TestLoad_OtherErrorsPassThrough(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.ListErr = &service.APIError{Status: 0, Err: errors.New("connection refused")}
	s := progress.NewSynchronizer(fake, nil)

	err := s.Load(context.Background(), planID, weekTasks(1, 1))

	assert.True(t, service.IsNetworkError(err))
	assert.Equal(t, 0, fake.Calls().Batch)
}

func TestClose_DiscardsSettledResult(t *testing.T) {
	tasks := weekTasks(1, 1)
	s, fake := newReady(t, tasks)
	id := progress.IdentityOf(tasks[0])
	fake.Gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), planID, id) }()
	require.Eventually(t, func() bool { return fake.Calls().Update == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	close(fake.Gate)

	assert.ErrorIs(t, <-done, progress.ErrClosed)
	e, _ := s.ReadIndex(planID).Lookup(id)
	assert.Equal(t, service.StatusNotStarted, e.Status)

	assert.ErrorIs(t, s.Start(context.Background(), planID, id), progress.ErrClosed)
}

func TestClose_DiscardsSettledInitialization(t *testing.T) {
	fake := testutil.NewFakeService()
	fake.Gate = make(chan struct{})
	s := progress.NewSynchronizer(fake, nil)
	tasks := weekTasks(1, 3)

	done := make(chan error, 1)
	go func() { done <- s.EnsureInitialized(context.Background(), planID, tasks) }()
	require.Eventually(t, func() bool { return fake.Calls().Batch == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	close(fake.Gate)

	assert.ErrorIs(t, <-done, progress.ErrClosed)
	assert.Equal(t, 0, s.ReadIndex(planID).Len())
	// The server still ran the batch; only the local result was dropped.
	assert.Len(t, fake.PlanRecords(planID), 3)
}
