// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"context"

	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/restricteddb"
)

// QuerySql implements spec.md §4.1's querySql operation. mu is held for
// the entire call, including the database round trip: spec.md §5
// explicitly tolerates Storage I/O (restricted DB operations included)
// under the lock.
func (p *Processor) QuerySql(
	ctx context.Context,
	sqlQuery string,
	minClientVersion int32,
	configId int64,
	configPackage string,
	callingUid int32,
) (restricteddb.Result, *restricteddb.QueryError) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.restrictedMetricsEnabled {
		return p.rejectQuery(restricteddb.ReasonFlagDisabled, "restricted metrics are disabled")
	}
	if p.requiredSqliteVersion > 0 && minClientVersion < p.requiredSqliteVersion {
		return p.rejectQuery(restricteddb.ReasonUnsupportedSqliteVersion, "client sqlite version is too old")
	}

	uids := p.uidMap.GetAppUid(configPackage)

	keys, err := restricteddb.ResolveConfigKeys(configId, uids,
		func(key configkey.Key) bool {
			rec, ok := p.configs[key]
			return ok && rec.config.HasRestrictedMetricsDelegate()
		},
		func(key configkey.Key) bool {
			rec, ok := p.configs[key]
			return ok && rec.manager.ValidateRestrictedMetricsDelegate(callingUid)
		},
	)
	if err != nil {
		return p.rejectQuery(err.Reason, err.Message)
	}
	if len(keys) > 1 {
		return p.rejectQuery(restricteddb.ReasonAmbiguousConfigKey, "multiple configs match the given config key")
	}

	key := keys[0]
	rec := p.configs[key]
	rec.manager.FlushRestrictedData()
	rec.manager.EnforceRestrictedDataTtls(p.clk.WallNs())

	res, qerr := p.restricted.Query(ctx, key, sqlQuery)
	if qerr != nil {
		return p.rejectQuery(qerr.Reason, qerr.Message)
	}
	return res, nil
}

func (p *Processor) rejectQuery(reason restricteddb.InvalidQueryReason, message string) (restricteddb.Result, *restricteddb.QueryError) {
	p.stats.IncInvalidQuery(reason.String())
	return restricteddb.Result{}, &restricteddb.QueryError{Reason: reason, Message: message}
}
