package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PageVault/internal/ports"
)

// TaskFunc runs a dispatched task.
type TaskFunc func(ctx context.Context, task ports.Task)

// Timer is an in-process one-shot scheduler backed by time.AfterFunc.
// A cron-like external scheduler would replace it behind the same port in a
// multi-worker deployment.
type Timer struct {
	run    TaskFunc
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

var _ ports.Scheduler = (*Timer)(nil)

// NewTimer wires the task handler invoked when timers fire.
func NewTimer(run TaskFunc) *Timer {
	return &Timer{run: run, timers: map[string]*time.Timer{}}
}

// ScheduleOnce arms a timer for the task. An identical pending task (same
// name and args) is left in place rather than doubled.
func (t *Timer) ScheduleOnce(_ context.Context, task ports.Task, at time.Time) error {
	key := taskKey(task)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if _, pending := t.timers[key]; pending {
		return nil
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	t.timers[key] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, key)
		closed := t.closed
		t.mu.Unlock()
		if closed || t.run == nil {
			return
		}
		t.run(context.Background(), task)
	})
	return nil
}

// IsScheduled reports whether an identical task is pending.
func (t *Timer) IsScheduled(_ context.Context, task ports.Task) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, pending := t.timers[taskKey(task)]
	return pending, nil
}

// Stop cancels all pending timers. Tasks already running are not interrupted.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

func taskKey(task ports.Task) string {
	if len(task.Args) == 0 {
		return task.Name
	}
	keys := make([]string, 0, len(task.Args))
	for k := range task.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(task.Name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(task.Args[k])
	}
	return b.String()
}
