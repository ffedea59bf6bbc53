// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/statsdconfig"
)

func TestOnConfigUpdatedInstallsThenModularUpdateKeepsManagerIdentity(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	cfg := encodeTestConfig("a", validConfig())

	h.p.OnConfigUpdated(0, 0, key, cfg, false)
	rec := h.p.configs[key]
	require.NotNil(t, rec)
	original := rec.manager

	// OnConfigUpdated(key, sameConfig, modularUpdate=true) twice in
	// succession must not replace the manager, and must leave its
	// byteSize unchanged (idempotence).
	before := original.ByteSize()
	h.p.OnConfigUpdated(0, 0, key, cfg, true)
	h.p.OnConfigUpdated(0, 0, key, cfg, true)

	assert.Same(t, original, h.p.configs[key].manager)
	assert.Equal(t, before, h.p.configs[key].manager.ByteSize())
}

func TestOnConfigUpdatedWithInvalidConfigRemovesExistingRecord(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", validConfig()), false)
	require.Contains(t, h.p.configs, key)

	h.p.OnConfigUpdated(0, 0, key, statsdconfig.Config{Valid: false}, false)

	assert.NotContains(t, h.p.configs, key)
	snap := h.p.stats.Snapshot()
	assert.EqualValues(t, 1, snap.DbConfigInvalid)
}

func TestOnConfigRemovedHasNoFurtherSideEffects(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", validConfig()), false)

	h.p.OnConfigRemoved(key)
	assert.NotContains(t, h.p.configs, key)

	// After OnConfigRemoved(k), no subsequent event produces any
	// Metrics-Manager-observable side effect for k: there is no longer
	// a record to observe, and delivering more events must not resurrect one.
	h.p.OnLogEvent(h.event(1))
	assert.NotContains(t, h.p.configs, key)
	assert.Empty(t, h.broadcasts)
}

func TestOnConfigRemovedClearsPersistedLocalHistory(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	cfg := validConfig()
	cfg.PersistLocalHistory = true
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", cfg), false)

	h.p.store.WriteHistory(key, 1, []byte("history-blob"))
	require.Len(t, h.p.store.ListHistoryFiles(key), 1)

	h.p.OnConfigRemoved(key)

	assert.Empty(t, h.p.store.ListHistoryFiles(key))
}

func TestResetExpiredConfigsReplacesManagerAndWritesReset(t *testing.T) {
	tun := config.Defaults()
	h := newTestHarness(t, tun)
	key := configkey.Key{Uid: 1000, Id: 42}

	cfg := validConfig()
	cfg.TtlNs = 500_000_000
	cfg = encodeTestConfig("a", cfg)
	h.p.OnConfigUpdated(0, 0, key, cfg, false)

	original := h.p.configs[key].manager
	// Give the manager something to report before it expires, so the
	// forced reset write has metrics to persist.
	h.p.OnLogEvent(h.event(0))
	require.True(t, h.p.configs[key].manager.IsActive())
	require.True(t, h.p.configs[key].manager.IsInTtl(0))
	require.False(t, h.p.configs[key].manager.IsInTtl(1_000_000_000))

	h.p.OnLogEvent(h.event(1_000_000_000))

	assert.NotSame(t, original, h.p.configs[key].manager)
	assert.True(t, h.p.store.HasOnDiskReports(key))
}
