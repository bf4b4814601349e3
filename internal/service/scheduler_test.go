package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"rastreio-bot/pkg/logger"
)

func TestSchedulerRunsTasksAndSurvivesFailures(t *testing.T) {
	var ok, failing, panicking int32

	s := NewScheduler(logger.Discard(),
		PeriodicTask{Name: "ok", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&ok, 1)
			return nil
		}},
		PeriodicTask{Name: "failing", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&failing, 1)
			return errors.New("boom")
		}},
		PeriodicTask{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&panicking, 1)
			panic("bad task")
		}},
		PeriodicTask{Name: "disabled", Interval: 0, Run: func(ctx context.Context) error {
			t.Errorf("disabled task must not run")
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&ok) >= 3 && atomic.LoadInt32(&failing) >= 3 && atomic.LoadInt32(&panicking) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}

	if atomic.LoadInt32(&failing) < 3 || atomic.LoadInt32(&panicking) < 3 {
		t.Fatalf("failing tasks must keep running: failing=%d panicking=%d", failing, panicking)
	}
}

func TestWhenConnected(t *testing.T) {
	var connected atomic.Bool
	var runs int32
	run := WhenConnected(connected.Load, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	run(context.Background())
	if runs != 0 {
		t.Fatalf("expected task to be skipped while disconnected")
	}
	connected.Store(true)
	run(context.Background())
	if runs != 1 {
		t.Fatalf("expected task to run while connected")
	}
}
