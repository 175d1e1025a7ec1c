package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/worker"
)

func TestScheduler_RunOnStart(t *testing.T) {
	f := newFixture(&fakeSource{ds: testDataset()}, 0)
	s := worker.NewScheduler(worker.SchedulerConfig{
		Job:        f.job,
		Interval:   time.Hour,
		RunOnStart: true,
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.store.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_WaitsForFirstTick(t *testing.T) {
	f := newFixture(&fakeSource{ds: testDataset()}, 0)
	s := worker.NewScheduler(worker.SchedulerConfig{
		Job:      f.job,
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 0, f.store.Count())
}
