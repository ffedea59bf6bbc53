// SPDX-License-Identifier: GPL-3.0-or-later

// Package restricteddb implements the querySql surface of spec.md §4.1
// against a per-ConfigKey database/sql handle. The SQL engine itself is
// out of scope (spec.md §1): callers inject an already-open *sql.DB per
// restricted-metrics-enabled ConfigKey (one database file per key, per
// spec.md §6), and this package only resolves which key a query targets
// and runs it. Grounded on the teacher's many database/sql collectors
// (plugin/go.d/collector/mysql, /oracledb) for QueryContext/Scan usage;
// tests use github.com/DATA-DOG/go-sqlmock, the same way the teacher's
// SQL collector tests do.
package restricteddb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/netdata/statsd-core/internal/configkey"
)

// InvalidQueryReason mirrors the taxonomy spec.md §7 names for a
// rejected restricted-metrics query.
type InvalidQueryReason int32

const (
	ReasonUnknown InvalidQueryReason = iota
	ReasonFlagDisabled
	ReasonUnsupportedSqliteVersion
	ReasonConfigKeyNotFound
	ReasonConfigKeyWithUnmatchedDelegate
	ReasonAmbiguousConfigKey
	ReasonQueryFailure
	ReasonInconsistentRowSize
)

func (r InvalidQueryReason) String() string {
	switch r {
	case ReasonFlagDisabled:
		return "FLAG_DISABLED"
	case ReasonUnsupportedSqliteVersion:
		return "UNSUPPORTED_SQLITE_VERSION"
	case ReasonConfigKeyNotFound:
		return "CONFIG_KEY_NOT_FOUND"
	case ReasonConfigKeyWithUnmatchedDelegate:
		return "CONFIG_KEY_WITH_UNMATCHED_DELEGATE"
	case ReasonAmbiguousConfigKey:
		return "AMBIGUOUS_CONFIG_KEY"
	case ReasonQueryFailure:
		return "QUERY_FAILURE"
	case ReasonInconsistentRowSize:
		return "INCONSISTENT_ROW_SIZE"
	default:
		return "UNKNOWN"
	}
}

// QueryError carries an InvalidQueryReason alongside a human-readable
// message, the callback failure message in the original implementation.
type QueryError struct {
	Reason  InvalidQueryReason
	Message string
}

func (e *QueryError) Error() string { return e.Message }

func newErr(reason InvalidQueryReason, msg string) *QueryError {
	return &QueryError{Reason: reason, Message: msg}
}

// Result is the successful query outcome: the column names, one slice
// of stringified cells per row, and the row count. Column types are not
// reported.
type Result struct {
	ColumnNames []string
	Rows        [][]string
	RowCount    int
}

// Handles opens and tracks one *sql.DB per ConfigKey, via an injected
// opener (the concrete driver is the daemon's concern, out of scope
// here).
type Handles struct {
	open func(key configkey.Key) (*sql.DB, error)
	dbs  map[configkey.Key]*sql.DB
}

func NewHandles(open func(key configkey.Key) (*sql.DB, error)) *Handles {
	return &Handles{open: open, dbs: make(map[configkey.Key]*sql.DB)}
}

func (h *Handles) get(key configkey.Key) (*sql.DB, error) {
	if db, ok := h.dbs[key]; ok {
		return db, nil
	}
	db, err := h.open(key)
	if err != nil {
		return nil, err
	}
	h.dbs[key] = db
	return db, nil
}

// Open eagerly establishes the handle for key, so the backing database
// exists before the first query arrives instead of on first use.
func (h *Handles) Open(key configkey.Key) error {
	_, err := h.get(key)
	return err
}

// Close closes and forgets the handle for key, called from
// OnConfigRemoved / DeleteRestrictedDb.
func (h *Handles) Close(key configkey.Key) {
	if db, ok := h.dbs[key]; ok {
		_ = db.Close()
		delete(h.dbs, key)
	}
}

// ResolveConfigKeys implements getRestrictedConfigKeysToQueryLocked:
// given every uid a calling package resolves to, find which of those
// uids (paired with configId) name an installed restricted-metrics
// config whose delegate the caller matches.
func ResolveConfigKeys(
	configId int64,
	candidateUids []int32,
	installed func(key configkey.Key) bool,
	delegateMatches func(key configkey.Key) bool,
) ([]configkey.Key, *QueryError) {
	var matched []configkey.Key
	for _, uid := range candidateUids {
		key := configkey.Key{Uid: uid, Id: configId}
		if installed(key) {
			matched = append(matched, key)
		}
	}
	if len(matched) == 0 {
		return nil, newErr(ReasonConfigKeyNotFound, "no configs found matching the config key")
	}

	var result []configkey.Key
	for _, key := range matched {
		if delegateMatches(key) {
			result = append(result, key)
		}
	}
	if len(result) == 0 {
		return nil, newErr(ReasonConfigKeyWithUnmatchedDelegate, "no matching configs for restricted metrics delegate")
	}
	return result, nil
}

// Query runs sqlQuery against key's database and returns either a
// Result or the InvalidQueryReason-tagged failure the original
// implementation's callback would have received.
func (h *Handles) Query(ctx context.Context, key configkey.Key, sqlQuery string) (Result, *QueryError) {
	db, err := h.get(key)
	if err != nil {
		return Result{}, newErr(ReasonQueryFailure, fmt.Sprintf("failed to query db: %v", err))
	}

	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return Result{}, newErr(ReasonQueryFailure, fmt.Sprintf("failed to query db: %v", err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, newErr(ReasonQueryFailure, fmt.Sprintf("failed to query db: %v", err))
	}

	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, newErr(ReasonQueryFailure, fmt.Sprintf("failed to query db: %v", err))
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = stringifyCell(v)
		}
		if len(row) != len(cols) {
			return Result{}, newErr(ReasonInconsistentRowSize, "inconsistent row sizes")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, newErr(ReasonQueryFailure, fmt.Sprintf("failed to query db: %v", err))
	}

	return Result{ColumnNames: cols, Rows: out, RowCount: len(out)}, nil
}

func stringifyCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
