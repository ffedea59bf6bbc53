// SPDX-License-Identifier: GPL-3.0-or-later

// Package eventfilter tracks which atom ids any installed Metrics
// Manager cares about, plus a default set, so an ingress path can ask
// Interested whether an atom is wanted (spec.md §2 "Event Filter"). The
// Log Event Processor keeps the set current as configs are installed
// and removed; it does not consult Interested itself when handling an
// event. Grounded on the teacher's narrow mutation API
// over a plain map in module/registry.go (Register/Unregister/lookup),
// generalized here to a set keyed by atom id.
package eventfilter

import (
	"sync"

	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/configkey"
)

// Filter is the union, across every installed config, of declared atom
// ids plus the process-wide default set (spec.md §2).
type Filter struct {
	mu sync.RWMutex

	defaults  map[atom.Id]struct{}
	perConfig map[configkey.Key]map[atom.Id]struct{}
	refCount  map[atom.Id]int
}

func New() *Filter {
	f := &Filter{
		defaults:  make(map[atom.Id]struct{}),
		perConfig: make(map[configkey.Key]map[atom.Id]struct{}),
		refCount:  make(map[atom.Id]int),
	}
	for _, id := range atom.DefaultFilterIds {
		f.defaults[id] = struct{}{}
	}
	return f
}

// SetConfig installs (or replaces) the atom ids key declared interest
// in. Call with a nil/empty slice on OnConfigRemoved.
func (f *Filter) SetConfig(key configkey.Key, declaredIds []int32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.perConfig[key]; ok {
		for id := range old {
			f.refCount[id]--
			if f.refCount[id] <= 0 {
				delete(f.refCount, id)
			}
		}
		delete(f.perConfig, key)
	}

	if len(declaredIds) == 0 {
		return
	}
	ids := make(map[atom.Id]struct{}, len(declaredIds))
	for _, raw := range declaredIds {
		id := atom.Id(raw)
		ids[id] = struct{}{}
		f.refCount[id]++
	}
	f.perConfig[key] = ids
}

// RemoveConfig is SetConfig(key, nil) by another name, used from
// OnConfigRemoved for readability at call sites.
func (f *Filter) RemoveConfig(key configkey.Key) {
	f.SetConfig(key, nil)
}

// Interested reports whether any installed config (or the default set)
// wants atom id.
func (f *Filter) Interested(id atom.Id) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.defaults[id]; ok {
		return true
	}
	_, ok := f.refCount[id]
	return ok
}
