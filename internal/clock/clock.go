// SPDX-License-Identifier: GPL-3.0-or-later

// Package clock provides the monotonic ("elapsed") and wall-clock time
// surface the processor and its managers use, plus scheduling of future
// alarms (spec.md §2 "Clock & Alarm surface").
package clock

import (
	"sync"
	"time"
)

// Clock reports elapsed (monotonic) and wall-clock nanoseconds.
type Clock interface {
	ElapsedNs() int64
	WallNs() int64
}

// SystemClock is backed by time.Now(); elapsed time is measured from
// process start so it is monotonic regardless of wall-clock jumps.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) ElapsedNs() int64 {
	return int64(time.Since(c.start))
}

func (c *SystemClock) WallNs() int64 {
	return time.Now().UnixNano()
}

// FakeClock lets tests drive elapsed/wall time explicitly instead of
// sleeping, the pattern the teacher's manager tests use.
type FakeClock struct {
	mu      sync.Mutex
	elapsed int64
	wall    int64
}

func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

func (c *FakeClock) ElapsedNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *FakeClock) WallNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

func (c *FakeClock) Set(elapsedNs, wallNs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed, c.wall = elapsedNs, wallNs
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += int64(d)
	c.wall += int64(d)
}

// AlarmHandle cancels a scheduled alarm. Cancelling after the alarm has
// already begun firing lets the in-flight callback complete (spec.md §5).
type AlarmHandle interface {
	Cancel()
}

// Scheduler schedules one-shot future callbacks.
type Scheduler interface {
	ScheduleAlarm(when time.Duration, fn func()) AlarmHandle
}

// TimeScheduler schedules alarms with time.AfterFunc. No library in the
// retrieval pack offers a single-callback deadline primitive that fits
// better than the standard timer; see DESIGN.md.
type TimeScheduler struct{}

func NewTimeScheduler() *TimeScheduler { return &TimeScheduler{} }

func (TimeScheduler) ScheduleAlarm(when time.Duration, fn func()) AlarmHandle {
	t := time.AfterFunc(when, fn)
	return timerHandle{t}
}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() { h.t.Stop() }
