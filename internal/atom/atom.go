// SPDX-License-Identifier: GPL-3.0-or-later

// Package atom defines the wire-independent representation of a decoded
// telemetry event ("atom") that the Log Event Processor consumes. Decoding
// atoms off the ingress socket is out of scope (spec.md §1); this package
// only fixes the shape the core needs.
package atom

// Id enumerates the atoms the core treats specially. Every other atom id
// is opaque to the core and is simply fanned out to Metrics Managers.
type Id int32

const (
	Unknown Id = iota
	IsolatedUidChanged
	BinaryPushStateChanged
	WatchdogRollbackOccurred
	AppBreadcrumbReported
	AnomalyDetected
	StatsSocketLossReported
)

// DefaultFilterIds is the Event Filter's default atom-id set (spec.md §6),
// before any Metrics Manager's declared atom ids are unioned in.
var DefaultFilterIds = []Id{
	BinaryPushStateChanged,
	IsolatedUidChanged,
	AppBreadcrumbReported,
	WatchdogRollbackOccurred,
	AnomalyDetected,
	StatsSocketLossReported,
}

// Event is one decoded atom instance.
type Event struct {
	AtomId    Id
	ElapsedNs int64
	WallNs    int64
	LoggerUid int32

	// Valid is false for malformed events (spec.md §4.1 step 1); the
	// processor counts and drops these before any other processing.
	Valid bool

	// Fields carries the atom's typed payload. The core only interprets
	// fields for the handful of atoms with special handling; every other
	// atom's fields pass through untouched.
	Fields map[string]any
}

// Clone returns a deep-enough copy for rewrite-in-place handling (§4.1.a/b):
// the Fields map is copied so a hard-coded handler can mutate an event
// without aliasing the caller's map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	c := *e
	c.Fields = fields
	return &c
}

// Int64 reads an int64 field, defaulting to 0.
func (e *Event) Int64(key string) int64 {
	if v, ok := e.Fields[key].(int64); ok {
		return v
	}
	return 0
}

// String reads a string field, defaulting to "".
func (e *Event) String(key string) string {
	if v, ok := e.Fields[key].(string); ok {
		return v
	}
	return ""
}

// Bool reads a bool field, defaulting to false.
func (e *Event) Bool(key string) bool {
	if v, ok := e.Fields[key].(bool); ok {
		return v
	}
	return false
}

// Int64Slice reads a []int64 field, defaulting to nil.
func (e *Event) Int64Slice(key string) []int64 {
	if v, ok := e.Fields[key].([]int64); ok {
		return v
	}
	return nil
}

// Set writes a field, used by the hard-coded rewrite handlers.
func (e *Event) Set(key string, v any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = v
}
