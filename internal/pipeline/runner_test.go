package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRunner_TicksImmediatelyAndOnInterval(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testNow)
	var calls atomic.Int32
	r := NewRunner("test", time.Minute, fc, func(context.Context) error {
		calls.Add(1)
		return errors.New("tick failures are logged, not fatal")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		fc.Advance(time.Minute)
		return calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	r := NewRunner("test", time.Minute, clockwork.NewFakeClockAt(testNow), func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	assert.Zero(t, calls.Load())
}
