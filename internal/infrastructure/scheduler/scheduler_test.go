package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	runs int32
	err  error
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }
func (j *fakeJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func TestScheduler_Register_RejectsNilJobOrScheduleAndDuplicateName(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "j"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&fakeJob{name: "j"}, NewIntervalSchedule(time.Minute)))
	err := s.Register(&fakeJob{name: "j"}, NewIntervalSchedule(time.Minute))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestScheduler_Unregister_RemovesJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&fakeJob{name: "j"}, NewIntervalSchedule(time.Minute)))

	require.NoError(t, s.Unregister("j"))
	assert.ErrorIs(t, s.Unregister("j"), ErrJobNotFound)
}

func TestScheduler_EnableDisableJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&fakeJob{name: "j"}, NewIntervalSchedule(time.Minute)))

	require.NoError(t, s.DisableJob("j"))
	info, err := s.GetJobInfo("j")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.EnableJob("j"))
	info, err = s.GetJobInfo("j")
	require.NoError(t, err)
	assert.True(t, info.Enabled)

	assert.ErrorIs(t, s.EnableJob("missing"), ErrJobNotFound)
	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)
}

func TestScheduler_RunNow_ExecutesImmediatelyAndRecordsResult(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "j"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "j")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), job.runs)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "j", history[0].JobName)
}

func TestScheduler_RunNow_RecordsFailureAndMetrics(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "j", err: errors.New("boom")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "j")
	assert.Error(t, err)
	assert.False(t, result.Success)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
}

func TestScheduler_RunNow_UnknownJobReturnsErrJobNotFound(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_StartStop_RunsDueJobsOnTicker(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "j"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) > 0
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_ListJobs_ReflectsRegisteredJobs(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&fakeJob{name: "a"}, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(&fakeJob{name: "b"}, NewIntervalSchedule(time.Minute)))

	infos := s.ListJobs()
	assert.Len(t, infos, 2)
}
