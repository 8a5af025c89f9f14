package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name     string
	schedule string
	timeout  time.Duration
	err      error
	runs     atomic.Int32
	deadline atomic.Bool
}

func (c *countingTask) Name() string { return c.name }

func (c *countingTask) Schedule() string { return c.schedule }

func (c *countingTask) Timeout() time.Duration { return c.timeout }

func (c *countingTask) Run(ctx context.Context) error {
	c.runs.Add(1)
	_, ok := ctx.Deadline()
	c.deadline.Store(ok)
	return c.err
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewTaskRegistry()
	require.NoError(t, reg.Register(&countingTask{name: "b"}))
	require.NoError(t, reg.Register(&countingTask{name: "a"}))
	assert.EqualError(t, reg.Register(&countingTask{name: "a"}), "task a already registered")
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestRunOnce(t *testing.T) {
	reg := NewTaskRegistry()
	task := &countingTask{name: "collect", timeout: time.Minute}
	require.NoError(t, reg.Register(task))
	r := NewRunner(reg, WithSignals())

	require.NoError(t, r.RunOnce(context.Background(), "collect"))
	assert.Equal(t, int32(1), task.runs.Load())
	assert.True(t, task.deadline.Load())

	assert.EqualError(t, r.RunOnce(context.Background(), "nope"), "unknown task nope")
}

func TestRunOncePropagatesError(t *testing.T) {
	reg := NewTaskRegistry()
	task := &countingTask{name: "collect", err: errors.New("boom")}
	require.NoError(t, reg.Register(task))

	err := NewRunner(reg, WithSignals()).RunOnce(context.Background(), "collect")
	assert.EqualError(t, err, "boom")
	assert.False(t, task.deadline.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	reg := NewTaskRegistry()
	require.NoError(t, reg.Register(&countingTask{name: "collect", schedule: "every now and then"}))

	err := NewRunner(reg, WithSignals()).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule task collect")
}

func TestStartStopsOnCancel(t *testing.T) {
	reg := NewTaskRegistry()
	require.NoError(t, reg.Register(&countingTask{name: "collect", schedule: "@every 1h"}))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewRunner(reg, WithSignals()).Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
