// SPDX-License-Identifier: GPL-3.0-or-later

// Package uidmap tracks the mapping from isolated uids to host uids, and
// per-(uid, package) version/certificate metadata, for the Log Event
// Processor (spec.md §2 "Uid Map"). The processor holds it by reference
// and it is internally synchronized (spec.md §5),
// grounded on the teacher's mutex-guarded map-cache pattern in
// plugin/go.d/agent/jobmgr/cache.go.
package uidmap

import (
	"sync"

	"github.com/netdata/statsd-core/internal/configkey"
)

// PackageInfo is what the map knows about one installed package on a uid.
type PackageInfo struct {
	PackageName     string
	VersionCode     int64
	VersionString   string
	Installer       string
	CertificateHash []byte
}

// Listener is notified whenever the map snapshot changes, so a Metrics
// Manager can refresh any package-name slices it caches.
type Listener interface {
	OnUidMapChanged()
}

// Map is the Uid Map component.
type Map struct {
	mu sync.Mutex

	// isolated -> host
	isolatedToHost map[int64]int64

	// uid -> packages installed on it
	packages map[int32][]PackageInfo

	// interested config keys (snapshot delta is only computed for
	// configs that have called OnConfigUpdated and not OnConfigRemoved)
	interested map[configkey.Key]bool

	listeners []Listener
}

func New() *Map {
	return &Map{
		isolatedToHost: make(map[int64]int64),
		packages:       make(map[int32][]PackageInfo),
		interested:     make(map[configkey.Key]bool),
	}
}

func (m *Map) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Map) notifyLocked() {
	for _, l := range m.listeners {
		l.OnUidMapChanged()
	}
}

// UpdateIsolatedUid records or clears an isolated-uid mapping, the
// handler for the isolated-uid-changed atom (spec.md §6).
func (m *Map) UpdateIsolatedUid(parentUid, isolatedUid int64, isCreate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isCreate {
		m.isolatedToHost[isolatedUid] = parentUid
	} else {
		delete(m.isolatedToHost, isolatedUid)
	}
}

// GetHostUidOrSelf resolves an isolated uid to its host uid, or returns
// uid unchanged if it is not isolated.
func (m *Map) GetHostUidOrSelf(uid int32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if host, ok := m.isolatedToHost[int64(uid)]; ok {
		return int32(host)
	}
	return uid
}

// UpdatePackage records installed-package metadata, called from a full
// snapshot refresh (onUidMapReceived) or an incremental app upgrade.
func (m *Map) UpdatePackage(uid int32, info PackageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkgs := m.packages[uid]
	for i, p := range pkgs {
		if p.PackageName == info.PackageName {
			pkgs[i] = info
			m.notifyLocked()
			return
		}
	}
	m.packages[uid] = append(pkgs, info)
	m.notifyLocked()
}

// RemovePackage removes a package's metadata on app removal.
func (m *Map) RemovePackage(uid int32, packageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkgs := m.packages[uid]
	for i, p := range pkgs {
		if p.PackageName == packageName {
			m.packages[uid] = append(pkgs[:i], pkgs[i+1:]...)
			m.notifyLocked()
			return
		}
	}
}

// GetAppUid returns every uid a package name is currently installed on.
func (m *Map) GetAppUid(packageName string) []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var uids []int32
	for uid, pkgs := range m.packages {
		for _, p := range pkgs {
			if p.PackageName == packageName {
				uids = append(uids, uid)
				break
			}
		}
	}
	return uids
}

// PreviousVersion returns the version recorded for (uid, packageName)
// before the caller overwrites it with NotifyAppUpgrade, or (0, false)
// if the package was not previously known.
func (m *Map) PreviousVersion(uid int32, packageName string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages[uid] {
		if p.PackageName == packageName {
			return p.VersionCode, true
		}
	}
	return 0, false
}

// OnConfigUpdated marks key as interested in uid-map deltas for its
// reports. Restricted configs never register (spec.md §4.1 OnConfigUpdated).
func (m *Map) OnConfigUpdated(key configkey.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interested[key] = true
}

// OnConfigRemoved drops a config's interest in uid-map deltas.
func (m *Map) OnConfigRemoved(key configkey.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.interested, key)
}

// Delta is the uid-map snapshot embedded in a ConfigMetricsReport.
type Delta struct {
	Uids     []int32
	Packages map[int32][]PackageInfo
}

// Snapshot returns the current uid/package map for embedding in a
// report, or an empty Delta if key is not interested (e.g. restricted).
func (m *Map) Snapshot(key configkey.Key) Delta {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.interested[key] {
		return Delta{}
	}
	out := Delta{Packages: make(map[int32][]PackageInfo, len(m.packages))}
	for uid, pkgs := range m.packages {
		out.Uids = append(out.Uids, uid)
		cp := make([]PackageInfo, len(pkgs))
		copy(cp, pkgs)
		out.Packages[uid] = cp
	}
	return out
}
