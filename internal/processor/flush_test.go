// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/configkey"
)

func ratedTunables() config.Tunables {
	tun := config.Defaults()
	tun.MinBroadcastPeriod = time.Second
	tun.MinByteSizeCheckPeriod = 0
	return tun
}

// TestRateLimitedBroadcast exercises one ConfigKey whose byte-size
// crosses its trigger once, then again before MinBroadcastPeriod has
// elapsed: exactly one broadcast goes out.
func TestRateLimitedBroadcast(t *testing.T) {
	h := newTestHarness(t, ratedTunables())
	key := configkey.Key{Uid: 1000, Id: 42}
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", validConfig()), false)

	for i := int64(0); i < 7; i++ {
		h.p.OnLogEvent(h.event(i))
	}
	require.Len(t, h.broadcasts, 1)
	assert.Equal(t, key, h.broadcasts[0])

	for i := int64(0); i < 3; i++ {
		h.p.OnLogEvent(h.event(500_000_000 + i))
	}
	assert.Len(t, h.broadcasts, 1, "second burst arrives before MinBroadcastPeriod elapses")

	// Every event of the second burst requests a dump and is suppressed
	// by the rate limit, and each suppression is counted.
	snap := h.p.stats.Snapshot()
	assert.EqualValues(t, 3, snap.DataBroadcastDropped)
}

// TestFlushTriggerByteBoundary covers the totalBytes == triggerBytes
// boundary: exactly at the trigger (one 16-byte bucket), no dump; over
// it (a second bucket, 32 bytes), a dump.
func TestFlushTriggerByteBoundary(t *testing.T) {
	h := newTestHarness(t, ratedTunables())
	key := configkey.Key{Uid: 1000, Id: 42}
	cfg := validConfig()
	cfg.TriggerGetDataBytes = 16
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", cfg), false)

	h.p.OnLogEvent(h.event(0))
	assert.Empty(t, h.broadcasts, "totalBytes == triggerBytes must not dump")

	h.p.OnLogEvent(h.event(1))
	assert.Len(t, h.broadcasts, 1, "totalBytes > triggerBytes must dump")
}

func TestFlushDropsDataOverMaxMetricsBytes(t *testing.T) {
	h := newTestHarness(t, ratedTunables())
	key := configkey.Key{Uid: 1000, Id: 42}
	cfg := validConfig()
	cfg.MaxMetricsBytes = 8
	cfg.TriggerGetDataBytes = 4
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", cfg), false)

	// One event already produces 16 bytes (one bucket), over the
	// 8-byte cap: the drop path takes priority over the trigger dump.
	h.p.OnLogEvent(h.event(0))

	assert.Empty(t, h.broadcasts)
	snap := h.p.stats.Snapshot()
	assert.EqualValues(t, 1, snap.DataDropped)
}

func TestOnDumpReportResetsLastBroadcastTimeToSentinel(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", validConfig()), false)
	h.p.OnLogEvent(h.event(0))

	h.p.configs[key].lastBroadcastTimeNs = 5
	_, ok := h.p.OnDumpReport(key, 10, 10, true, true, DumpReasonExplicitDump, 0)
	require.True(t, ok)

	// Erasing must reset the sentinel to "never yet" (-1), not to 0:
	// 0 is a legitimate elapsed timestamp and must not itself suppress
	// the very next broadcast.
	assert.Equal(t, int64(-1), h.p.configs[key].lastBroadcastTimeNs)
}

func TestOnDumpReportIncrementsReportNumberMonotonically(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", validConfig()), false)
	h.p.OnLogEvent(h.event(0))

	list1, ok := h.p.OnDumpReport(key, 10, 10, true, true, DumpReasonExplicitDump, 0)
	require.True(t, ok)

	h.p.OnLogEvent(h.event(11))
	list2, ok := h.p.OnDumpReport(key, 20, 20, true, true, DumpReasonExplicitDump, 0)
	require.True(t, ok)

	assert.GreaterOrEqual(t, list2.ConfigKey.ReportNumber, list1.ConfigKey.ReportNumber)
	assert.Greater(t, list2.ConfigKey.ReportNumber, list1.ConfigKey.ReportNumber)
}

func TestOnDumpReportRejectsRestrictedConfig(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	key := configkey.Key{Uid: 1000, Id: 42}
	cfg := validConfig()
	cfg.RestrictedMetricsDelegatePackageName = "com.delegate"
	h.p.OnConfigUpdated(0, 0, key, encodeTestConfig("a", cfg), false)

	_, ok := h.p.OnDumpReport(key, 0, 0, true, true, DumpReasonExplicitDump, 0)
	assert.False(t, ok)
}
