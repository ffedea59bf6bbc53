// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/restricteddb"
	"github.com/netdata/statsd-core/internal/statsdconfig"
	"github.com/netdata/statsd-core/internal/uidmap"
)

func restrictedConfig(delegate string) statsdconfig.Config {
	cfg := validConfig()
	cfg.RestrictedMetricsDelegatePackageName = delegate
	return cfg
}

func TestQuerySqlAmbiguousConfigKey(t *testing.T) {
	h := newTestHarness(t, config.Defaults())

	k1 := configkey.Key{Uid: 1000, Id: 9}
	k2 := configkey.Key{Uid: 2000, Id: 9}
	h.p.OnConfigUpdated(0, 0, k1, encodeTestConfig("r1", restrictedConfig("p")), false)
	h.p.OnConfigUpdated(0, 0, k2, encodeTestConfig("r2", restrictedConfig("p")), false)

	h.p.uidMap.UpdatePackage(1000, uidmap.PackageInfo{PackageName: "p"})
	h.p.uidMap.UpdatePackage(2000, uidmap.PackageInfo{PackageName: "p"})

	_, qerr := h.p.QuerySql(context.Background(), "select 1", 0, 9, "p", 1000)
	require.NotNil(t, qerr)
	assert.Equal(t, restricteddb.ReasonAmbiguousConfigKey, qerr.Reason)

	snap := h.p.stats.Snapshot()
	assert.EqualValues(t, 1, snap.InvalidQueryAmbiguous)
}

func TestQuerySqlFlagDisabled(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.restrictedMetricsEnabled = false

	_, qerr := h.p.QuerySql(context.Background(), "select 1", 0, 9, "p", 1000)
	require.NotNil(t, qerr)
	assert.Equal(t, restricteddb.ReasonFlagDisabled, qerr.Reason)
}

func TestQuerySqlRejectsOldSqliteClient(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.requiredSqliteVersion = 3

	_, qerr := h.p.QuerySql(context.Background(), "select 1", 1, 9, "p", 1000)
	require.NotNil(t, qerr)
	assert.Equal(t, restricteddb.ReasonUnsupportedSqliteVersion, qerr.Reason)
}

func TestQuerySqlConfigKeyNotFound(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.uidMap.UpdatePackage(1000, uidmap.PackageInfo{PackageName: "p"})

	_, qerr := h.p.QuerySql(context.Background(), "select 1", 0, 9, "p", 1000)
	require.NotNil(t, qerr)
	assert.Equal(t, restricteddb.ReasonConfigKeyNotFound, qerr.Reason)
}
