// SPDX-License-Identifier: GPL-3.0-or-later

// Package reportpb encodes and decodes the wire messages spec.md §6
// names, using the exact field numbers the original daemon's protobuf
// schema assigns. It hand-rolls the wire format with
// google.golang.org/protobuf/encoding/protowire instead of generated
// code, since no .proto toolchain step is available here; field
// numbers must stay byte-compatible with the real schema regardless.
package reportpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers, named after the message they belong to. spec.md §6 only
// pins down 2,3,4,5,6,8,9,11 for ConfigMetricsReport; field 1 is the
// manager-opaque metric entries payload (the real metric wire format is
// out of scope), left unclaimed by the spec and the natural slot for a
// message's primary payload.
const (
	fieldConfigKeyUid           = 1
	fieldConfigKeyId            = 2
	fieldConfigKeyReportNumber  = 3
	fieldConfigKeyStatsdStatsId = 4

	fieldReportEntries               = 1
	fieldReportUidMap                = 2
	fieldReportLastElapsedNanos      = 3
	fieldReportCurrentElapsedNanos   = 4
	fieldReportLastWallClockNanos    = 5
	fieldReportCurrentWallClockNanos = 6
	fieldReportDumpReportReason      = 8
	fieldReportStrings               = 9
	fieldReportDataCorruptedReason   = 11

	fieldReportListConfigKey = 1
	fieldReportListReports   = 2

	fieldActiveConfigListConfig = 1
)

// ConfigKey mirrors the wire message spec.md §6 names, distinct from
// internal/configkey.Key (which is the in-memory identity type): this
// one additionally carries the report sequence number and a stats-id
// used only at serialization time.
type ConfigKey struct {
	Uid           int32
	Id            int64
	ReportNumber  int32
	StatsdStatsId int64
}

func (k ConfigKey) appendTo(b []byte) []byte {
	b = protowire.AppendTag(b, fieldConfigKeyUid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(k.Uid)))
	b = protowire.AppendTag(b, fieldConfigKeyId, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Id))
	if k.ReportNumber != 0 {
		b = protowire.AppendTag(b, fieldConfigKeyReportNumber, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(k.ReportNumber)))
	}
	if k.StatsdStatsId != 0 {
		b = protowire.AppendTag(b, fieldConfigKeyStatsdStatsId, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(k.StatsdStatsId))
	}
	return b
}

func decodeConfigKey(b []byte) (ConfigKey, error) {
	var k ConfigKey
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return k, fmt.Errorf("reportpb: bad ConfigKey tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldConfigKeyUid:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return k, fmt.Errorf("reportpb: bad ConfigKey.uid: %w", protowire.ParseError(n))
			}
			k.Uid = int32(uint32(v))
			b = b[n:]
		case fieldConfigKeyId:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return k, fmt.Errorf("reportpb: bad ConfigKey.id: %w", protowire.ParseError(n))
			}
			k.Id = int64(v)
			b = b[n:]
		case fieldConfigKeyReportNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return k, fmt.Errorf("reportpb: bad ConfigKey.report_number: %w", protowire.ParseError(n))
			}
			k.ReportNumber = int32(uint32(v))
			b = b[n:]
		case fieldConfigKeyStatsdStatsId:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return k, fmt.Errorf("reportpb: bad ConfigKey.statsd_stats_id: %w", protowire.ParseError(n))
			}
			k.StatsdStatsId = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return k, fmt.Errorf("reportpb: bad ConfigKey unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return k, nil
}

// UidPackage is one (uid -> packages) entry embedded in a uid-map delta.
type UidPackage struct {
	Uid         int32
	PackageName string
	VersionCode int64
}

// UidMapDelta is the embedded uid-map snapshot (field 2 of ConfigMetricsReport).
type UidMapDelta struct {
	Packages []UidPackage
}

func (d UidMapDelta) appendTo(b []byte) []byte {
	for _, p := range d.Packages {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(uint32(p.Uid)))
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendString(entry, p.PackageName)
		entry = protowire.AppendTag(entry, 3, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(p.VersionCode))

		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func decodeUidMapDelta(b []byte) (UidMapDelta, error) {
	var d UidMapDelta
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("reportpb: bad UidMapDelta tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("reportpb: bad UidMapDelta field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		entry, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return d, fmt.Errorf("reportpb: bad UidMapDelta entry: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var p UidPackage
		eb := entry
		for len(eb) > 0 {
			enum, etyp, en := protowire.ConsumeTag(eb)
			if en < 0 {
				return d, fmt.Errorf("reportpb: bad UidPackage tag: %w", protowire.ParseError(en))
			}
			eb = eb[en:]
			switch enum {
			case 1:
				v, en := protowire.ConsumeVarint(eb)
				if en < 0 {
					return d, fmt.Errorf("reportpb: bad UidPackage.uid: %w", protowire.ParseError(en))
				}
				p.Uid = int32(uint32(v))
				eb = eb[en:]
			case 2:
				s, en := protowire.ConsumeString(eb)
				if en < 0 {
					return d, fmt.Errorf("reportpb: bad UidPackage.package_name: %w", protowire.ParseError(en))
				}
				p.PackageName = s
				eb = eb[en:]
			case 3:
				v, en := protowire.ConsumeVarint(eb)
				if en < 0 {
					return d, fmt.Errorf("reportpb: bad UidPackage.version_code: %w", protowire.ParseError(en))
				}
				p.VersionCode = int64(v)
				eb = eb[en:]
			default:
				en := protowire.ConsumeFieldValue(enum, etyp, eb)
				if en < 0 {
					return d, fmt.Errorf("reportpb: bad UidPackage field %d: %w", enum, protowire.ParseError(en))
				}
				eb = eb[en:]
			}
		}
		d.Packages = append(d.Packages, p)
	}
	return d, nil
}

// ConfigMetricsReport is one per-config report embedded in a
// ConfigMetricsReportList.
type ConfigMetricsReport struct {
	Entries                     []byte
	UidMap                      UidMapDelta
	LastReportElapsedNanos      int64
	CurrentReportElapsedNanos   int64
	LastReportWallClockNanos    int64
	CurrentReportWallClockNanos int64
	DumpReportReason            int32
	Strings                     []string
	DataCorruptedReason         int32
}

func (r ConfigMetricsReport) appendTo(b []byte) []byte {
	if len(r.Entries) > 0 {
		b = protowire.AppendTag(b, fieldReportEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Entries)
	}
	if len(r.UidMap.Packages) > 0 {
		b = protowire.AppendTag(b, fieldReportUidMap, protowire.BytesType)
		b = protowire.AppendBytes(b, r.UidMap.appendTo(nil))
	}
	b = protowire.AppendTag(b, fieldReportLastElapsedNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.LastReportElapsedNanos))
	b = protowire.AppendTag(b, fieldReportCurrentElapsedNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.CurrentReportElapsedNanos))
	b = protowire.AppendTag(b, fieldReportLastWallClockNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.LastReportWallClockNanos))
	b = protowire.AppendTag(b, fieldReportCurrentWallClockNanos, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.CurrentReportWallClockNanos))
	if r.DumpReportReason != 0 {
		b = protowire.AppendTag(b, fieldReportDumpReportReason, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(r.DumpReportReason)))
	}
	for _, s := range r.Strings {
		b = protowire.AppendTag(b, fieldReportStrings, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	if r.DataCorruptedReason != 0 {
		b = protowire.AppendTag(b, fieldReportDataCorruptedReason, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(r.DataCorruptedReason)))
	}
	return b
}

func decodeConfigMetricsReport(b []byte) (ConfigMetricsReport, error) {
	var r ConfigMetricsReport
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("reportpb: bad ConfigMetricsReport tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldReportEntries:
			bs, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad entries: %w", protowire.ParseError(n))
			}
			r.Entries = bs
			b = b[n:]
		case fieldReportUidMap:
			bs, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad uid_map: %w", protowire.ParseError(n))
			}
			um, err := decodeUidMapDelta(bs)
			if err != nil {
				return r, err
			}
			r.UidMap = um
			b = b[n:]
		case fieldReportLastElapsedNanos:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad last_report_elapsed_nanos: %w", protowire.ParseError(n))
			}
			r.LastReportElapsedNanos = int64(v)
			b = b[n:]
		case fieldReportCurrentElapsedNanos:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad current_report_elapsed_nanos: %w", protowire.ParseError(n))
			}
			r.CurrentReportElapsedNanos = int64(v)
			b = b[n:]
		case fieldReportLastWallClockNanos:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad last_report_wall_clock_nanos: %w", protowire.ParseError(n))
			}
			r.LastReportWallClockNanos = int64(v)
			b = b[n:]
		case fieldReportCurrentWallClockNanos:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad current_report_wall_clock_nanos: %w", protowire.ParseError(n))
			}
			r.CurrentReportWallClockNanos = int64(v)
			b = b[n:]
		case fieldReportDumpReportReason:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad dump_report_reason: %w", protowire.ParseError(n))
			}
			r.DumpReportReason = int32(uint32(v))
			b = b[n:]
		case fieldReportStrings:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad strings entry: %w", protowire.ParseError(n))
			}
			r.Strings = append(r.Strings, s)
			b = b[n:]
		case fieldReportDataCorruptedReason:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad data_corrupted_reason: %w", protowire.ParseError(n))
			}
			r.DataCorruptedReason = int32(uint32(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("reportpb: bad ConfigMetricsReport field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// ConfigMetricsReportList is the top-level message onDumpReport emits.
type ConfigMetricsReportList struct {
	ConfigKey ConfigKey
	Reports   []ConfigMetricsReport
}

func EncodeConfigMetricsReportList(l ConfigMetricsReportList) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReportListConfigKey, protowire.BytesType)
	b = protowire.AppendBytes(b, l.ConfigKey.appendTo(nil))
	for _, r := range l.Reports {
		b = protowire.AppendTag(b, fieldReportListReports, protowire.BytesType)
		b = protowire.AppendBytes(b, r.appendTo(nil))
	}
	return b
}

func DecodeConfigMetricsReportList(b []byte) (ConfigMetricsReportList, error) {
	var l ConfigMetricsReportList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return l, fmt.Errorf("reportpb: bad ConfigMetricsReportList tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldReportListConfigKey:
			bs, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return l, fmt.Errorf("reportpb: bad config_key: %w", protowire.ParseError(n))
			}
			k, err := decodeConfigKey(bs)
			if err != nil {
				return l, err
			}
			l.ConfigKey = k
			b = b[n:]
		case fieldReportListReports:
			bs, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return l, fmt.Errorf("reportpb: bad reports entry: %w", protowire.ParseError(n))
			}
			r, err := decodeConfigMetricsReport(bs)
			if err != nil {
				return l, err
			}
			l.Reports = append(l.Reports, r)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return l, fmt.Errorf("reportpb: bad ConfigMetricsReportList field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return l, nil
}

// ActiveConfigList is the set of active configs that
// SaveActiveConfigsToDisk persists and LoadActiveConfigsFromDisk reads
// back.
type ActiveConfigList struct {
	Configs []ConfigKey
}

func EncodeActiveConfigList(l ActiveConfigList) []byte {
	var b []byte
	for _, k := range l.Configs {
		b = protowire.AppendTag(b, fieldActiveConfigListConfig, protowire.BytesType)
		b = protowire.AppendBytes(b, k.appendTo(nil))
	}
	return b
}

func DecodeActiveConfigList(b []byte) (ActiveConfigList, error) {
	var l ActiveConfigList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return l, fmt.Errorf("reportpb: bad ActiveConfigList tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num != fieldActiveConfigListConfig {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return l, fmt.Errorf("reportpb: bad ActiveConfigList field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		bs, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return l, fmt.Errorf("reportpb: bad config entry: %w", protowire.ParseError(n))
		}
		k, err := decodeConfigKey(bs)
		if err != nil {
			return l, err
		}
		l.Configs = append(l.Configs, k)
		b = b[n:]
	}
	return l, nil
}
