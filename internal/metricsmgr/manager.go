// SPDX-License-Identifier: GPL-3.0-or-later

// Package metricsmgr declares the Metrics Manager contract the Log
// Event Processor depends on (spec.md §4.2) and supplies one concrete
// implementation: bucketed event-count aggregation. The real metric
// math (Count/Duration/Value/Gauge/KLL) is out of scope (spec.md §1);
// this implementation exists to exercise every behavior the contract
// drives — activation, TTL, byte-size pressure, restricted delegates,
// report emission — with the simplest aggregate that can observe them
// all. Grounded on the teacher's narrow `module.Module` interface
// (module/module.go) behind many concrete collectors: here, one
// concrete manager stands in for the real fleet.
package metricsmgr

import (
	"encoding/json"
	"fmt"

	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/statsdconfig"
)

// Manager is the contract spec.md §4.2 names in full.
type Manager interface {
	OnLogEvent(event *atom.Event)
	IsActive() bool
	HasRestrictedMetricsDelegate() bool
	RestrictedMetricsDelegate() string
	AllMetricIds() []int64
	ByteSize() int
	MaxMetricsBytes() int
	TriggerGetDataBytes() int
	DropData(nowNs int64)
	FlushRestrictedData()
	ShouldPersistLocalHistory() bool
	ShouldWriteToDisk() bool
	LastReportTimeNs() int64
	LastReportWallClockNs() int64
	OnDumpReport(req DumpRequest) DumpResult
	IsInTtl(nowNs int64) bool
	RefreshTtl(nowNs int64)
	UpdateConfig(config statsdconfig.Config, timeBaseNs, nowNs int64) bool
	OnAnomalyAlarmFired(nowNs int64)
	OnPeriodicAlarmFired(nowNs int64)
	AddAllAtomIds(set map[int32]struct{})
	EnforceRestrictedDataTtls(wallClockNs int64)
	NotifyAppUpgrade(uid int32, packageName string, version int64)
	NotifyAppRemoved(uid int32, packageName string)
	OnUidMapReceived()
	OnStatsdInitCompleted()
	LoadMetadata(data []byte) error
	WriteMetadataToProto() []byte
	LoadActiveConfig(data []byte) error
	WriteActiveConfigToProto() []byte
	ValidateRestrictedMetricsDelegate(callingUid int32) bool
}

// DumpRequest is the input to OnDumpReport (spec.md §4.1.d).
type DumpRequest struct {
	DumpTimeNs        int64
	WallClockNs       int64
	IncludePartial    bool
	Erase             bool
	LatencyNs         int64
	DumpReportReason  int32
	Strings           []string
	DataCorruptReason int32
}

// DumpResult is what the manager handed back: the serialized metric
// entries plus whether anything was emitted at all (an empty manager
// contributes no report, per spec.md §4.1.d: "if it has at least one
// metric, append ...").
type DumpResult struct {
	HasMetrics bool
	Entries    []byte
}

type metadataSnapshot struct {
	LastReportTimeNs      int64 `json:"last_report_time_ns"`
	LastReportWallClockNs int64 `json:"last_report_wall_clock_ns"`
	TtlAnchorNs           int64 `json:"ttl_anchor_ns"`
	Active                bool  `json:"active"`
}

// BucketedCount is the concrete implementation: one bucketed event
// counter per config, with activation flipping on when the counter is
// non-zero, matching enough of a real manager's observable surface to
// drive the processor end-to-end.
type BucketedCount struct {
	bucketSizeNs int64

	config statsdconfig.Config

	buckets    map[int64]int64 // bucket index -> count
	bucketBase int64

	ttlAnchorNs int64
	ttlNs       int64

	lastReportTimeNs      int64
	lastReportWallClockNs int64

	dropped bool
	active  bool
}

func NewBucketedCount(config statsdconfig.Config, bucketSizeNs, timeBaseNs, nowNs int64) *BucketedCount {
	m := &BucketedCount{
		bucketSizeNs: bucketSizeNs,
		buckets:      make(map[int64]int64),
	}
	m.UpdateConfig(config, timeBaseNs, nowNs)
	return m
}

func (m *BucketedCount) bucketIndex(ns int64) int64 {
	if m.bucketSizeNs <= 0 {
		return 0
	}
	return (ns - m.bucketBase) / m.bucketSizeNs
}

func (m *BucketedCount) OnLogEvent(event *atom.Event) {
	if event == nil || !event.Valid {
		return
	}
	idx := m.bucketIndex(event.ElapsedNs)
	// Monotonic buckets (spec.md §3 invariant 3): never apply to a
	// bucket index less than any already observed.
	for existing := range m.buckets {
		if idx < existing {
			idx = existing
		}
	}
	m.buckets[idx]++
	m.active = true
}

func (m *BucketedCount) IsActive() bool { return m.active }

func (m *BucketedCount) HasRestrictedMetricsDelegate() bool {
	return m.config.HasRestrictedMetricsDelegate()
}

func (m *BucketedCount) RestrictedMetricsDelegate() string {
	return m.config.RestrictedMetricsDelegatePackageName
}

func (m *BucketedCount) AllMetricIds() []int64 {
	ids := make([]int64, 0, len(m.buckets))
	for idx := range m.buckets {
		ids = append(ids, idx)
	}
	return ids
}

func (m *BucketedCount) ByteSize() int {
	// 16 bytes per bucket entry (int64 key + int64 count) is a
	// reasonable stand-in for a real manager's serialized footprint.
	return len(m.buckets) * 16
}

func (m *BucketedCount) MaxMetricsBytes() int {
	if m.config.MaxMetricsBytes > 0 {
		return m.config.MaxMetricsBytes
	}
	return 1 << 20
}

func (m *BucketedCount) TriggerGetDataBytes() int {
	if m.config.TriggerGetDataBytes > 0 {
		return m.config.TriggerGetDataBytes
	}
	return m.MaxMetricsBytes() / 2
}

func (m *BucketedCount) DropData(nowNs int64) {
	m.buckets = make(map[int64]int64)
	m.dropped = true
}

func (m *BucketedCount) FlushRestrictedData() {
	// The SQL engine is out of scope (spec.md §1); a real manager
	// would write its buckets into the restricted DB here.
}

func (m *BucketedCount) ShouldPersistLocalHistory() bool { return m.config.PersistLocalHistory }
func (m *BucketedCount) ShouldWriteToDisk() bool         { return m.config.WriteToDisk }
func (m *BucketedCount) LastReportTimeNs() int64         { return m.lastReportTimeNs }
func (m *BucketedCount) LastReportWallClockNs() int64    { return m.lastReportWallClockNs }

func (m *BucketedCount) OnDumpReport(req DumpRequest) DumpResult {
	if len(m.buckets) == 0 {
		m.lastReportTimeNs = req.DumpTimeNs
		m.lastReportWallClockNs = req.WallClockNs
		return DumpResult{HasMetrics: false}
	}

	entries, err := json.Marshal(m.buckets)
	if err != nil {
		entries = nil
	}

	if req.Erase {
		m.buckets = make(map[int64]int64)
	}
	m.lastReportTimeNs = req.DumpTimeNs
	m.lastReportWallClockNs = req.WallClockNs

	return DumpResult{HasMetrics: true, Entries: entries}
}

func (m *BucketedCount) IsInTtl(nowNs int64) bool {
	if m.ttlNs <= 0 {
		return true
	}
	return nowNs-m.ttlAnchorNs < m.ttlNs
}

func (m *BucketedCount) RefreshTtl(nowNs int64) { m.ttlAnchorNs = nowNs }

func (m *BucketedCount) UpdateConfig(config statsdconfig.Config, timeBaseNs, nowNs int64) bool {
	if !config.Valid {
		return false
	}
	m.config = config
	m.ttlNs = config.TtlNs
	m.bucketBase = timeBaseNs
	m.RefreshTtl(nowNs)
	return true
}

func (m *BucketedCount) OnAnomalyAlarmFired(nowNs int64)  {}
func (m *BucketedCount) OnPeriodicAlarmFired(nowNs int64) {}

func (m *BucketedCount) AddAllAtomIds(set map[int32]struct{}) {
	for _, id := range m.config.DeclaredAtomIds {
		set[id] = struct{}{}
	}
}

func (m *BucketedCount) EnforceRestrictedDataTtls(wallClockNs int64) {}

func (m *BucketedCount) NotifyAppUpgrade(uid int32, packageName string, version int64) {}
func (m *BucketedCount) NotifyAppRemoved(uid int32, packageName string)                {}
func (m *BucketedCount) OnUidMapReceived()                                             {}
func (m *BucketedCount) OnStatsdInitCompleted()                                        {}

func (m *BucketedCount) LoadMetadata(data []byte) error {
	var snap metadataSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("metricsmgr: load metadata: %w", err)
	}
	m.lastReportTimeNs = snap.LastReportTimeNs
	m.lastReportWallClockNs = snap.LastReportWallClockNs
	m.ttlAnchorNs = snap.TtlAnchorNs
	m.active = snap.Active
	return nil
}

func (m *BucketedCount) WriteMetadataToProto() []byte {
	b, _ := json.Marshal(metadataSnapshot{
		LastReportTimeNs:      m.lastReportTimeNs,
		LastReportWallClockNs: m.lastReportWallClockNs,
		TtlAnchorNs:           m.ttlAnchorNs,
		Active:                m.active,
	})
	return b
}

func (m *BucketedCount) LoadActiveConfig(data []byte) error {
	var active bool
	if err := json.Unmarshal(data, &active); err != nil {
		return fmt.Errorf("metricsmgr: load active config: %w", err)
	}
	m.active = active
	return nil
}

func (m *BucketedCount) WriteActiveConfigToProto() []byte {
	b, _ := json.Marshal(m.active)
	return b
}

func (m *BucketedCount) ValidateRestrictedMetricsDelegate(callingUid int32) bool {
	return m.HasRestrictedMetricsDelegate()
}
