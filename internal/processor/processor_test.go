// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/clock"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/eventfilter"
	"github.com/netdata/statsd-core/internal/metricsmgr"
	"github.com/netdata/statsd-core/internal/statsdconfig"
	"github.com/netdata/statsd-core/internal/statsdstats"
	"github.com/netdata/statsd-core/internal/storage"
	"github.com/netdata/statsd-core/internal/uidmap"
)

// testHarness bundles a Processor with recording callbacks, built over a
// real, temp-dir-backed Store so every on-disk path under test runs
// against the actual filesystem layout instead of a fake.
type testHarness struct {
	t   *testing.T
	p   *Processor
	clk *clock.FakeClock

	broadcasts       []configkey.Key
	broadcastAccept  bool
	activationCalls  []int32
	activationAccept bool
	restrictedCalls  []configkey.Key
}

func newTestHarness(t *testing.T, tun config.Tunables) *testHarness {
	t.Helper()
	store := storage.New(t.TempDir())
	require.NoError(t, store.EnsureDirs())

	h := &testHarness{
		t:                t,
		clk:              clock.NewFakeClock(),
		broadcastAccept:  true,
		activationAccept: true,
	}

	h.p = New(
		store,
		uidmap.New(),
		eventfilter.New(),
		statsdstats.New(),
		h.clk,
		tun,
		func(cfg statsdconfig.Config, timeBaseNs, nowNs int64) metricsmgr.Manager {
			return metricsmgr.NewBucketedCount(cfg, int64(1), timeBaseNs, nowNs)
		},
		Callbacks{
			SendBroadcast: func(key configkey.Key) bool {
				h.broadcasts = append(h.broadcasts, key)
				return h.broadcastAccept
			},
			SendActivationBroadcast: func(uid int32, configIds []int64) bool {
				h.activationCalls = append(h.activationCalls, uid)
				return h.activationAccept
			},
			SendRestrictedMetricsBroadcast: func(key configkey.Key, delegatePackage string, configIds []int64) {
				h.restrictedCalls = append(h.restrictedCalls, key)
			},
		},
		WithConfigDecoder(decodeTestConfig),
	)
	return h
}

// testConfigs lets tests hand a statsdconfig.Config through the store's
// Raw-bytes round trip (used by the TTL-reset reload path) without a
// real config parser: Raw is an opaque token this decoder looks up.
var testConfigs = map[string]statsdconfig.Config{}

func encodeTestConfig(token string, cfg statsdconfig.Config) statsdconfig.Config {
	cfg.Raw = []byte(token)
	testConfigs[token] = cfg
	return cfg
}

func decodeTestConfig(raw []byte) (statsdconfig.Config, bool) {
	cfg, ok := testConfigs[string(raw)]
	return cfg, ok
}

func validConfig() statsdconfig.Config {
	return statsdconfig.Config{Valid: true, MaxMetricsBytes: 1 << 20, TriggerGetDataBytes: 100}
}

func (h *testHarness) event(elapsedNs int64) *atom.Event {
	return &atom.Event{Valid: true, ElapsedNs: elapsedNs, WallNs: elapsedNs}
}

func TestOnLogEventEmptyConfigSetReturnsAfterStats(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.OnLogEvent(h.event(0))
	assert.Empty(t, h.broadcasts)
	assert.Empty(t, h.activationCalls)
}

func TestOnLogEventDropsNilAndInvalidEvents(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.OnLogEvent(nil)

	h.p.OnLogEvent(&atom.Event{Valid: false})
	snap := h.p.stats.Snapshot()
	assert.EqualValues(t, 1, snap.AtomErrors)
}

func TestRemapUidFieldsLockedRewritesIsolatedUid(t *testing.T) {
	h := newTestHarness(t, config.Defaults())
	h.p.uidMap.UpdateIsolatedUid(1000, 99000, true)

	event := &atom.Event{Valid: true, LoggerUid: 99000, Fields: map[string]any{"uid": int64(99000)}}
	h.p.OnLogEvent(event)

	assert.EqualValues(t, 1000, event.LoggerUid)
	assert.EqualValues(t, 1000, event.Int64("uid"))
}
