package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMaintenance struct {
	weekly int
	daily  int
	err    error
}

func (f *fakeMaintenance) ResetStaleWeeklyFlags(ctx context.Context) (int, error) {
	f.weekly++
	return 3, f.err
}

func (f *fakeMaintenance) ResetTodayFlags(ctx context.Context) (int, error) {
	f.daily++
	return 1, f.err
}

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(time.UTC, zap.New(core))
	m := &fakeMaintenance{}
	for _, job := range MaintenanceJobs(m) {
		require.NoError(t, s.Add(job))
	}

	processed, err := s.RunNow(context.Background(), "reset-weekly-flags")
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 1, m.weekly)
	assert.Equal(t, 0, m.daily)

	entries := logs.FilterMessage("job finished").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "reset-weekly-flags", entries[0].ContextMap()["job"])
}

func TestRunNowReportsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(time.UTC, zap.New(core))
	boom := errors.New("boom")
	require.NoError(t, s.Add(MaintenanceJobs(&fakeMaintenance{err: boom})[1]))

	_, err := s.RunNow(context.Background(), "reset-today-flags")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("job failed").Len())

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestAddRejectsInvalidJobs(t *testing.T) {
	s := New(nil, nil)
	run := func(context.Context) (int, error) { return 0, nil }

	assert.Error(t, s.Add(Job{Name: "bad", Spec: "every tuesday", Run: run}))
	assert.Error(t, s.Add(Job{Spec: DailyResetSpec, Run: run}))
	require.NoError(t, s.Add(Job{Name: "ok", Spec: DailyResetSpec, Run: run}))
	assert.Error(t, s.Add(Job{Name: "ok", Spec: DailyResetSpec, Run: run}))
}

func TestStartStop(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
