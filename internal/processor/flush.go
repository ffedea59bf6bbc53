// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"sort"
	"time"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/metricsmgr"
	"github.com/netdata/statsd-core/internal/reportpb"
)

func (rec *configRecord) triggerBytes(tun config.Tunables) int {
	if rec.config.HasRestrictedMetricsDelegate() {
		return tun.BytesPerRestrictedConfigTrigger
	}
	return rec.manager.TriggerGetDataBytes()
}

// flushIfNecessaryLocked implements spec.md §4.1.c.
func (p *Processor) flushIfNecessaryLocked(rec *configRecord, event *atom.Event) {
	period := p.tun.MinByteSizeCheckPeriod.Nanoseconds()
	if rec.lastByteSizeCheckTimeNs != -1 && event.ElapsedNs-rec.lastByteSizeCheckTimeNs < period {
		return
	}
	rec.lastByteSizeCheckTimeNs = event.ElapsedNs

	totalBytes := rec.manager.ByteSize()

	if totalBytes > rec.manager.MaxMetricsBytes() {
		rec.manager.DropData(event.ElapsedNs)
		p.stats.IncDataDropped()
		return
	}

	if totalBytes <= rec.triggerBytes(p.tun) && !rec.hasOnDiskData {
		return
	}

	if rec.config.HasRestrictedMetricsDelegate() {
		rec.manager.FlushRestrictedData()
		return
	}

	bperiod := p.tun.MinBroadcastPeriod.Nanoseconds()
	if rec.lastBroadcastTimeNs != -1 && event.ElapsedNs-rec.lastBroadcastTimeNs < bperiod {
		p.stats.IncDataBroadcastDropped()
		return
	}
	if p.callbacks.SendBroadcast == nil {
		return
	}
	if p.callbacks.SendBroadcast(rec.key) {
		rec.hasOnDiskData = false
		rec.lastBroadcastTimeNs = event.ElapsedNs
	} else {
		p.stats.IncDataBroadcastDropped()
	}
}

func (p *Processor) maybeSendActivationBroadcastLocked(uid int32, elapsedNs int64) {
	last, seen := p.lastActivationBroadcastNs[uid]
	period := p.tun.MinActivationBroadcastPeriod.Nanoseconds()
	if seen && elapsedNs-last < period {
		p.stats.IncActivationBroadcastDropped()
		return
	}
	if p.callbacks.SendActivationBroadcast == nil {
		return
	}
	ids := p.activeConfigIdsForUidLocked(uid)
	if p.callbacks.SendActivationBroadcast(uid, ids) {
		p.lastActivationBroadcastNs[uid] = elapsedNs
	} else {
		p.stats.IncActivationBroadcastDropped()
	}
}

func (p *Processor) activeConfigIdsForUidLocked(uid int32) []int64 {
	var ids []int64
	for key, rec := range p.configs {
		if key.Uid == uid && rec.manager.IsActive() {
			ids = append(ids, key.Id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// buildReportLocked implements spec.md §4.1.d's in-memory report
// construction. It returns false if the manager has no metrics to
// report (an empty manager contributes nothing, per §4.1.d).
func (p *Processor) buildReportLocked(
	rec *configRecord,
	dumpTimeNs, wallClockNs int64,
	includePartial, eraseData bool,
	reason DumpReason,
	latencyNs int64,
	corrupt DataCorruptReason,
	strs []string,
) (reportpb.ConfigMetricsReport, bool) {
	prevElapsed := rec.manager.LastReportTimeNs()
	prevWall := rec.manager.LastReportWallClockNs()

	res := rec.manager.OnDumpReport(metricsmgr.DumpRequest{
		DumpTimeNs:        dumpTimeNs,
		WallClockNs:       wallClockNs,
		IncludePartial:    includePartial,
		Erase:             eraseData,
		LatencyNs:         latencyNs,
		DumpReportReason:  int32(reason),
		Strings:           strs,
		DataCorruptReason: int32(corrupt),
	})
	if !res.HasMetrics {
		return reportpb.ConfigMetricsReport{}, false
	}

	report := reportpb.ConfigMetricsReport{
		Entries:                     res.Entries,
		LastReportElapsedNanos:      prevElapsed,
		CurrentReportElapsedNanos:   dumpTimeNs,
		LastReportWallClockNanos:    prevWall,
		CurrentReportWallClockNanos: wallClockNs,
		DumpReportReason:            int32(reason),
		Strings:                     strs,
		DataCorruptedReason:         int32(corrupt),
	}

	if !rec.config.HasRestrictedMetricsDelegate() {
		delta := p.uidMap.Snapshot(rec.key)
		for _, uid := range delta.Uids {
			for _, pkg := range delta.Packages[uid] {
				report.UidMap.Packages = append(report.UidMap.Packages, reportpb.UidPackage{
					Uid:         uid,
					PackageName: pkg.PackageName,
					VersionCode: pkg.VersionCode,
				})
			}
		}
	}

	if eraseData && rec.config.PersistLocalHistory {
		p.writeHistoryLocked(rec, wallClockNs, report)
	}

	return report, true
}

func (p *Processor) writeHistoryLocked(rec *configRecord, wallClockNs int64, report reportpb.ConfigMetricsReport) {
	blob := reportpb.EncodeConfigMetricsReportList(reportpb.ConfigMetricsReportList{
		ConfigKey: reportpb.ConfigKey{Uid: rec.key.Uid, Id: rec.key.Id, ReportNumber: rec.dumpReportNumber},
		Reports:   []reportpb.ConfigMetricsReport{report},
	})
	p.store.WriteHistory(rec.key, wallClockNs/int64(time.Second), blob)
}

// OnDumpReport implements spec.md §4.1's onDumpReport operation:
// assembles the ConfigKey header, any previously persisted reports, and
// the current in-memory report into one ConfigMetricsReportList.
// Restricted configs are rejected (they dump through QuerySql instead).
func (p *Processor) OnDumpReport(
	key configkey.Key,
	dumpTimeNs, wallClockNs int64,
	includePartial, eraseData bool,
	reason DumpReason,
	latencyNs int64,
) (reportpb.ConfigMetricsReportList, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.configs[key]
	if !ok || rec.config.HasRestrictedMetricsDelegate() {
		return reportpb.ConfigMetricsReportList{}, false
	}

	list := reportpb.ConfigMetricsReportList{
		ConfigKey: reportpb.ConfigKey{Uid: key.Uid, Id: key.Id, ReportNumber: rec.dumpReportNumber},
	}

	eraseOnDisk := eraseData && !rec.config.PersistLocalHistory
	for _, blob := range p.store.ReadAndOptionallyDeleteReports(key, eraseOnDisk) {
		if l, err := reportpb.DecodeConfigMetricsReportList(blob); err == nil {
			list.Reports = append(list.Reports, l.Reports...)
		}
	}

	if report, hasMetrics := p.buildReportLocked(rec, dumpTimeNs, wallClockNs, includePartial, eraseData, reason, latencyNs, DataCorruptReasonNone, nil); hasMetrics {
		list.Reports = append(list.Reports, report)
	}

	if eraseData {
		// Reset the last-broadcast timer to "never yet" rather than 0:
		// 0 is a legitimate elapsed timestamp, and the very next event
		// at elapsed 0 must still be free to broadcast.
		rec.lastBroadcastTimeNs = -1
		if eraseOnDisk {
			rec.hasOnDiskData = false
		}
		rec.dumpReportNumber++
		p.stats.IncMetricsReportsSent()
	}
	list.ConfigKey.ReportNumber = rec.dumpReportNumber

	return list, true
}
