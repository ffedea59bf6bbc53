// SPDX-License-Identifier: GPL-3.0-or-later

// Package statsdstats holds the process-wide counters spec.md §9 asks
// to be turned from a global singleton into explicit state passed by
// reference. Every counter is a plain atomically-incremented int64,
// the teacher's pattern in module/job_v2.go for job run counts.
package statsdstats

import "sync/atomic"

// Stats is injected into the processor so its drop/suppress paths can
// record what happened without reaching for a package-level global.
type Stats struct {
	atomErrors                   atomic.Int64
	dataDropped                  atomic.Int64
	dbConfigInvalid              atomic.Int64
	activationBroadcastDropped   atomic.Int64
	dataBroadcastDropped         atomic.Int64
	invalidQueryAmbiguous        atomic.Int64
	invalidQueryConfigNotFound   atomic.Int64
	invalidQueryDelegateMismatch atomic.Int64
	invalidQueryFailure          atomic.Int64
	invalidQueryRowSize          atomic.Int64
	invalidQueryFlagDisabled     atomic.Int64
	invalidQueryUnsupportedDb    atomic.Int64
	metricsReportsSent           atomic.Int64
}

func New() *Stats { return &Stats{} }

func (s *Stats) IncAtomError()                  { s.atomErrors.Add(1) }
func (s *Stats) IncDataDropped()                { s.dataDropped.Add(1) }
func (s *Stats) IncDbConfigInvalid()            { s.dbConfigInvalid.Add(1) }
func (s *Stats) IncActivationBroadcastDropped() { s.activationBroadcastDropped.Add(1) }
func (s *Stats) IncDataBroadcastDropped()       { s.dataBroadcastDropped.Add(1) }
func (s *Stats) IncMetricsReportsSent()         { s.metricsReportsSent.Add(1) }

// IncInvalidQuery records one occurrence of reason (spec.md §7's
// InvalidQueryReason taxonomy).
func (s *Stats) IncInvalidQuery(reason string) {
	switch reason {
	case "AMBIGUOUS_CONFIG_KEY":
		s.invalidQueryAmbiguous.Add(1)
	case "CONFIG_KEY_NOT_FOUND":
		s.invalidQueryConfigNotFound.Add(1)
	case "CONFIG_KEY_WITH_UNMATCHED_DELEGATE":
		s.invalidQueryDelegateMismatch.Add(1)
	case "QUERY_FAILURE":
		s.invalidQueryFailure.Add(1)
	case "INCONSISTENT_ROW_SIZE":
		s.invalidQueryRowSize.Add(1)
	case "FLAG_DISABLED":
		s.invalidQueryFlagDisabled.Add(1)
	case "UNSUPPORTED_SQLITE_VERSION":
		s.invalidQueryUnsupportedDb.Add(1)
	}
}

// Snapshot is a point-in-time copy of every counter, for tests and for
// dumping process stats.
type Snapshot struct {
	AtomErrors                   int64
	DataDropped                  int64
	DbConfigInvalid              int64
	ActivationBroadcastDropped   int64
	DataBroadcastDropped         int64
	InvalidQueryAmbiguous        int64
	InvalidQueryConfigNotFound   int64
	InvalidQueryDelegateMismatch int64
	InvalidQueryFailure          int64
	InvalidQueryRowSize          int64
	InvalidQueryFlagDisabled     int64
	InvalidQueryUnsupportedDb    int64
	MetricsReportsSent           int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		AtomErrors:                   s.atomErrors.Load(),
		DataDropped:                  s.dataDropped.Load(),
		DbConfigInvalid:              s.dbConfigInvalid.Load(),
		ActivationBroadcastDropped:   s.activationBroadcastDropped.Load(),
		DataBroadcastDropped:         s.dataBroadcastDropped.Load(),
		InvalidQueryAmbiguous:        s.invalidQueryAmbiguous.Load(),
		InvalidQueryConfigNotFound:   s.invalidQueryConfigNotFound.Load(),
		InvalidQueryDelegateMismatch: s.invalidQueryDelegateMismatch.Load(),
		InvalidQueryFailure:          s.invalidQueryFailure.Load(),
		InvalidQueryRowSize:          s.invalidQueryRowSize.Load(),
		InvalidQueryFlagDisabled:     s.invalidQueryFlagDisabled.Load(),
		InvalidQueryUnsupportedDb:    s.invalidQueryUnsupportedDb.Load(),
		MetricsReportsSent:           s.metricsReportsSent.Load(),
	}
}
