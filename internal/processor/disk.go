// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"encoding/json"
	"time"

	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/reportpb"
)

// WriteDataToDisk implements spec.md §4.1's periodic disk-write path:
// rate-limited against the previous call, and honoring each manager's
// ShouldWriteToDisk opt-in.
func (p *Processor) WriteDataToDisk(reason DumpReason, latencyNs, elapsedNs, wallClockNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	period := p.tun.WriteDataCoolDown.Nanoseconds()
	if p.lastWriteToDiskNs != -1 && elapsedNs-p.lastWriteToDiskNs < period {
		return
	}
	p.lastWriteToDiskNs = elapsedNs

	p.writeAllToDiskLocked(reason, latencyNs, elapsedNs, wallClockNs, true)
}

// writeAllToDiskLocked writes every config's current snapshot to disk.
// optIn gates the write on each manager's ShouldWriteToDisk; the forced
// config-reset path passes false so nothing is skipped regardless of the
// manager's own preference. Config removal and replacement write their
// single record through writeRecordToDiskLocked directly.
func (p *Processor) writeAllToDiskLocked(reason DumpReason, latencyNs, elapsedNs, wallClockNs int64, optIn bool) {
	for _, rec := range p.configs {
		if optIn && !rec.manager.ShouldWriteToDisk() {
			continue
		}
		p.writeRecordToDiskLocked(rec, reason, latencyNs, elapsedNs, wallClockNs)
	}
}

// writeRecordToDiskLocked snapshots one config's in-memory metrics to
// the stats-data directory without erasing them. Restricted configs
// have no disk-report path: their data flushes into the restricted DB
// instead (spec.md §4.1.c).
func (p *Processor) writeRecordToDiskLocked(rec *configRecord, reason DumpReason, latencyNs, elapsedNs, wallClockNs int64) {
	if rec.config.HasRestrictedMetricsDelegate() {
		return
	}

	report, hasMetrics := p.buildReportLocked(rec, elapsedNs, wallClockNs, true, false, reason, latencyNs, DataCorruptReasonNone, nil)
	if !hasMetrics {
		return
	}

	blob := reportpb.EncodeConfigMetricsReportList(reportpb.ConfigMetricsReportList{
		ConfigKey: reportpb.ConfigKey{Uid: rec.key.Uid, Id: rec.key.Id, ReportNumber: rec.dumpReportNumber},
		Reports:   []reportpb.ConfigMetricsReport{report},
	})
	p.store.WriteReport(rec.key, wallClockNs/int64(time.Second), blob)
	rec.hasOnDiskData = true
}

// SaveActiveConfigsToDisk persists which installed configs are
// currently active, for LoadActiveConfigsFromDisk to restore across a
// restart (spec.md §6's ActiveConfigList).
func (p *Processor) SaveActiveConfigsToDisk() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var list reportpb.ActiveConfigList
	for key, rec := range p.configs {
		if rec.manager.IsActive() {
			list.Configs = append(list.Configs, reportpb.ConfigKey{Uid: key.Uid, Id: key.Id})
		}
	}
	p.store.WriteActiveConfigList(reportpb.EncodeActiveConfigList(list))
}

// LoadActiveConfigsFromDisk restores the active flag saved by
// SaveActiveConfigsToDisk onto whichever of those configs are
// currently installed; configs that are not installed yet are silently
// skipped, matching a config install that has not happened since boot.
func (p *Processor) LoadActiveConfigsFromDisk() {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw := p.store.ReadActiveConfigList()
	if raw == nil {
		return
	}
	list, err := reportpb.DecodeActiveConfigList(raw)
	if err != nil {
		p.log.Warningf("decode active config list: %v", err)
		return
	}
	for _, k := range list.Configs {
		key := configkey.Key{Uid: k.Uid, Id: k.Id}
		if rec, ok := p.configs[key]; ok {
			if err := rec.manager.LoadActiveConfig([]byte("true")); err != nil {
				p.log.Warningf("load active config for %s: %v", key, err)
			}
		}
	}
}

type metadataEntry struct {
	Uid  int32  `json:"uid"`
	Id   int64  `json:"id"`
	Data []byte `json:"data"`
}

// SaveMetadataToDisk persists each manager's opaque metadata blob
// (report timestamps, TTL anchors, activation state) in one file, the
// spec.md §6 "StatsMetadataList" this codebase never defines a wire
// schema for.
func (p *Processor) SaveMetadataToDisk() {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := make([]metadataEntry, 0, len(p.configs))
	for key, rec := range p.configs {
		entries = append(entries, metadataEntry{Uid: key.Uid, Id: key.Id, Data: rec.manager.WriteMetadataToProto()})
	}
	blob, err := json.Marshal(entries)
	if err != nil {
		p.log.Warningf("marshal metadata: %v", err)
		return
	}
	p.store.WriteMetadata(blob)
}

// LoadMetadataFromDisk restores metadata for whichever configs from the
// saved list are currently installed.
func (p *Processor) LoadMetadataFromDisk() {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw := p.store.ReadMetadata()
	if raw == nil {
		return
	}
	var entries []metadataEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.log.Warningf("unmarshal metadata: %v", err)
		return
	}
	for _, e := range entries {
		key := configkey.Key{Uid: e.Uid, Id: e.Id}
		if rec, ok := p.configs[key]; ok {
			if err := rec.manager.LoadMetadata(e.Data); err != nil {
				p.log.Warningf("load metadata for %s: %v", key, err)
			}
		}
	}
}
