package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_TryJoinBeforeFinish(t *testing.T) {
	op := NewOperation(time.Now())

	done, err := op.TryJoin()
	assert.False(t, done)
	assert.NoError(t, err)

	op.Finish(nil)
	done, err = op.TryJoin()
	assert.True(t, done)
	assert.NoError(t, err)
}

func TestOperation_JoinBlocksUntilFinish(t *testing.T) {
	op := NewOperation(time.Now())
	want := errors.New("fetch batch failed")

	go func() {
		time.Sleep(10 * time.Millisecond)
		op.Finish(want)
	}()

	err := op.Join()
	require.ErrorIs(t, err, want)

	// Join after completion returns immediately with the same error.
	assert.ErrorIs(t, op.Join(), want)
}

func TestOperation_EnqueuedAt(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	op := NewOperation(stamp)
	assert.Equal(t, stamp, op.EnqueuedAt())
}
