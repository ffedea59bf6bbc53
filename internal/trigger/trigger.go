// SPDX-License-Identifier: GPL-3.0-or-later

// Package trigger implements a one-shot callback that fires once a set
// of named conditions have all completed. Grounded on
// original_source/statsd's MultiConditionTrigger: constructing it with
// an empty condition set fires immediately in the background;
// otherwise the callback runs, once, the moment the last outstanding
// condition is marked complete.
package trigger

import (
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// MultiConditionTrigger fires fn exactly once, off the calling
// goroutine, as soon as every name passed to New has been reported via
// MarkComplete. Safe for concurrent use.
type MultiConditionTrigger struct {
	mu        sync.Mutex
	remaining map[string]struct{}
	completed bool
	fn        func()
	pool      *pool.Pool
	waitOnce  sync.Once
}

// New starts tracking conditionNames and returns the trigger. If
// conditionNames is empty, fn runs immediately on a pooled goroutine.
func New(conditionNames []string, fn func()) *MultiConditionTrigger {
	remaining := make(map[string]struct{}, len(conditionNames))
	for _, n := range conditionNames {
		remaining[n] = struct{}{}
	}
	t := &MultiConditionTrigger{
		remaining: remaining,
		completed: len(remaining) == 0,
		fn:        fn,
		pool:      pool.New(),
	}
	if t.completed {
		t.pool.Go(t.fn)
	}
	return t
}

// MarkComplete records that conditionName has finished. Once every
// condition has been marked complete, fn runs exactly once. Calls
// after the trigger has already fired are no-ops, matching the
// original's mCompleted short-circuit.
func (t *MultiConditionTrigger) MarkComplete(conditionName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return
	}
	delete(t.remaining, conditionName)
	t.completed = len(t.remaining) == 0
	if t.completed {
		t.pool.Go(t.fn)
	}
}

// Wait blocks until every fn dispatched so far has returned. If the
// trigger has not fired yet, it returns immediately; callers that need
// to observe the fired side effects should call it after the last
// MarkComplete that is expected to fire the trigger.
func (t *MultiConditionTrigger) Wait() {
	t.mu.Lock()
	fired := t.completed
	t.mu.Unlock()
	if fired {
		t.waitOnce.Do(t.pool.Wait)
	}
}
