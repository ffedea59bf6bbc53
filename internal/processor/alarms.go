// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"time"

	"github.com/netdata/statsd-core/internal/uidmap"
)

// SetAnomalyAlarm implements spec.md §4.1.b's alarm scheduling: the next
// call to OnLogEvent at or after elapsedMs fires every manager's
// OnAnomalyAlarmFired. Only alarmMu is touched, never mu (spec.md §5's
// lock-ordering rule: alarmMu may be acquired while holding mu, never
// the reverse).
func (p *Processor) SetAnomalyAlarm(elapsedMs int64) {
	p.alarmMu.Lock()
	defer p.alarmMu.Unlock()
	p.nextAnomalyDeadlineMs = elapsedMs
}

func (p *Processor) CancelAnomalyAlarm() {
	p.alarmMu.Lock()
	defer p.alarmMu.Unlock()
	p.nextAnomalyDeadlineMs = -1
}

// maybeFireAnomalyAlarmLocked is called with mu already held (OnLogEvent
// step 8). It acquires alarmMu, nested inside mu, only long enough to
// read and clear the deadline, then releases it before touching any
// manager, so alarmMu is never held while a manager runs.
func (p *Processor) maybeFireAnomalyAlarmLocked(nowElapsedNs int64) {
	nowMs := nowElapsedNs / int64(time.Millisecond)

	p.alarmMu.Lock()
	deadline := p.nextAnomalyDeadlineMs
	fire := deadline != -1 && nowMs >= deadline
	if fire {
		p.nextAnomalyDeadlineMs = -1
	}
	p.alarmMu.Unlock()

	if !fire {
		return
	}
	for _, rec := range p.configs {
		rec.manager.OnAnomalyAlarmFired(nowElapsedNs)
	}
}

// OnPeriodicAlarmFired implements spec.md §4.1's periodic-alarm handler.
// alarmSet identifies which scheduled alarm ids fired; per-alarm-id
// filtering is out of scope since Manager's contract exposes no
// per-alarm identity, so every installed manager is notified.
func (p *Processor) OnPeriodicAlarmFired(tsNs int64, alarmSet []int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range p.configs {
		rec.manager.OnPeriodicAlarmFired(tsNs)
	}
}

// InformPullAlarmFired implements spec.md §4.1's pull-alarm handler.
func (p *Processor) InformPullAlarmFired(tsNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pullerMgr.ClearCache()
}

func (p *Processor) NotifyAppUpgrade(uid int32, packageName string, versionCode int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uidMap.UpdatePackage(uid, uidmap.PackageInfo{PackageName: packageName, VersionCode: versionCode})
	for _, rec := range p.configs {
		rec.manager.NotifyAppUpgrade(uid, packageName, versionCode)
	}
	p.stateMgr.NotifyAppUpgrade(uid, packageName, versionCode)
}

func (p *Processor) NotifyAppRemoved(uid int32, packageName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uidMap.RemovePackage(uid, packageName)
	for _, rec := range p.configs {
		rec.manager.NotifyAppRemoved(uid, packageName)
	}
	p.stateMgr.NotifyAppRemoved(uid, packageName)
}

func (p *Processor) OnUidMapReceived() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.configs {
		rec.manager.OnUidMapReceived()
	}
	p.stateMgr.OnUidMapReceived()
}

func (p *Processor) OnStatsdInitCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.configs {
		rec.manager.OnStatsdInitCompleted()
	}
	p.stateMgr.OnStatsdInitCompleted()
}
