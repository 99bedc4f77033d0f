package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/pkg/logger"
)

func TestAddJobRejectsDuplicatesAndBadSchedules(t *testing.T) {
	s := New(logger.Nop())

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddJob(NewFuncJob("refresh", "0 0 6 1 * *", noop)))

	err := s.AddJob(NewFuncJob("refresh", "@daily", noop))
	assert.Error(t, err)

	// the parser expects a seconds field
	err = s.AddJob(NewFuncJob("bad", "0 6 1 * * * *", noop))
	assert.Error(t, err)

	assert.Equal(t, []string{"refresh"}, s.GetAllJobs())
}

func TestRunJobSyncRetriesUntilSuccess(t *testing.T) {
	s := New(logger.Nop(), WithRetry(2, time.Millisecond))

	var calls int32
	require.NoError(t, s.AddJob(NewFuncJob("flaky", "@hourly", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})))

	res, err := s.RunJobSync("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Error)

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)
}

func TestRunJobSyncRecordsFailure(t *testing.T) {
	s := New(logger.Nop(), WithRetry(1, time.Millisecond))

	require.NoError(t, s.AddJob(NewFuncJob("broken", "@hourly", func(context.Context) error {
		return errors.New("boom")
	})))

	res, err := s.RunJobSync("broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "boom", res.Error)

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
	assert.Equal(t, 0.0, history.GetSuccessRate())

	_, err = s.RunJobSync("missing")
	assert.Error(t, err)
}

func TestStopCancelsRetryWait(t *testing.T) {
	s := New(logger.Nop(), WithRetry(5, time.Hour))

	require.NoError(t, s.AddJob(NewFuncJob("slow", "@hourly", func(context.Context) error {
		return errors.New("down")
	})))

	done := make(chan JobResult, 1)
	go func() {
		res, _ := s.RunJobSync("slow")
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	s.Start()
	s.Stop()

	select {
	case res := <-done:
		assert.False(t, res.Success)
		assert.Equal(t, 1, res.Attempts)
		assert.Contains(t, res.Error, "scheduler stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("retry wait was not cancelled")
	}
}

func TestRemoveJob(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(NewFuncJob("a", "@daily", func(context.Context) error { return nil })))
	require.NoError(t, s.AddJob(NewFuncJob("b", "@daily", func(context.Context) error { return nil })))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Len(t, s.cron.Entries(), 1)
	assert.NotContains(t, s.GetJobStats(), "a")

	assert.Error(t, s.RemoveJob("a"))
}

func TestJobHistoryKeepsLatest(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+5; i++ {
		h.AddResult(JobResult{Success: i%2 == 0, Attempts: i})
	}

	assert.Len(t, h.Results, maxHistory)
	assert.Equal(t, 5, h.Results[0].Attempts)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Empty(t, h.GetLatestResults(0))
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
