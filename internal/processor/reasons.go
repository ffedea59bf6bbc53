// SPDX-License-Identifier: GPL-3.0-or-later

package processor

// DumpReason is the dump_report_reason wire field (spec.md §6), naming
// why a ConfigMetricsReport was produced.
type DumpReason int32

const (
	DumpReasonUnspecified DumpReason = iota
	DumpReasonConfigUpdated
	DumpReasonConfigRemoved
	DumpReasonConfigReset
	DumpReasonPeriodicFlush
	DumpReasonExplicitDump
)

// DataCorruptReason is the data_corrupted_reason wire field (spec.md
// §6/§7): surfaced inside a report rather than aborting it.
type DataCorruptReason int32

const (
	DataCorruptReasonNone DataCorruptReason = iota
	DataCorruptReasonEventQueueOverflow
	DataCorruptReasonSocketLossReported
)
