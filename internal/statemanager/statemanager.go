// SPDX-License-Identifier: GPL-3.0-or-later

// Package statemanager declares the narrow interfaces the Log Event
// Processor depends on for state tracking and pulled-metric caching
// (spec.md §1: both are "referenced by interface only"). A no-op
// implementation of each is provided for tests and the demo daemon.
package statemanager

import "github.com/netdata/statsd-core/internal/atom"

// StateManager observes every valid atom the processor handles, plus
// the cross-cutting notifications the processor fans out to every
// Metrics Manager, for subsystems (process state tracking, history
// aggregation) that live outside this core.
type StateManager interface {
	OnLogEvent(event *atom.Event)
	NotifyAppUpgrade(uid int32, packageName string, versionCode int64)
	NotifyAppRemoved(uid int32, packageName string)
	OnUidMapReceived()
	OnStatsdInitCompleted()
}

// PullerManager owns the process-wide puller cache the Log Event
// Processor tells to drop its cache periodically (spec.md §6's
// PullerCacheClearInterval).
type PullerManager interface {
	ClearCache()
}

type noopStateManager struct{}

func (noopStateManager) OnLogEvent(*atom.Event)                                            {}
func (noopStateManager) NotifyAppUpgrade(uid int32, packageName string, versionCode int64) {}
func (noopStateManager) NotifyAppRemoved(uid int32, packageName string)                    {}
func (noopStateManager) OnUidMapReceived()                                                 {}
func (noopStateManager) OnStatsdInitCompleted()                                            {}

// NoopStateManager returns a StateManager that does nothing, for
// callers that have not wired a real one.
func NoopStateManager() StateManager { return noopStateManager{} }

type noopPullerManager struct{}

func (noopPullerManager) ClearCache() {}

// NoopPullerManager returns a PullerManager that does nothing.
func NoopPullerManager() PullerManager { return noopPullerManager{} }
