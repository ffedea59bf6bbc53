// SPDX-License-Identifier: GPL-3.0-or-later

package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/internal/atom"
)

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (f *fakeStore) ReadTrainInfo(name string) ([]byte, bool) {
	b, ok := f.data[name]
	return b, ok
}

func (f *fakeStore) WriteTrainInfo(name string, data []byte) {
	f.data[name] = data
}

func (f *fakeStore) put(info Info) {
	f.data[info.TrainName] = info.Encode()
}

func TestBinaryPushSuccessWithKnownTrain(t *testing.T) {
	store := newFakeStore()
	store.put(Info{TrainName: "t", VersionCode: 5, ExperimentIds: []int64{10, 11}})

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"train_name":                   "t",
		"version_code":                 int64(-1),
		"experiment_ids":               []int64{10, 11},
		"status":                       int64(StatusInstallSuccess),
		"is_rollback":                  false,
		"requires_staging":             false,
		"rollback_enabled":             false,
		"requires_low_latency_monitor": false,
	}}

	HandleBinaryPush(store, event)

	assert.Equal(t, int64(5), event.Int64("version_code"))
	assert.Equal(t, []int64{10, 11, 11}, event.Int64Slice("experiment_ids"))

	raw, ok := store.ReadTrainInfo("t")
	require.True(t, ok)
	disk, ok := DecodeInfo(raw)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 11, 11}, disk.ExperimentIds)
}

func TestBinaryPushRollbackPreservesFlags(t *testing.T) {
	store := newFakeStore()
	store.put(Info{
		TrainName:                 "t",
		VersionCode:               5,
		ExperimentIds:             []int64{100},
		RequiresStaging:           true,
		RollbackEnabled:           false,
		RequiresLowLatencyMonitor: true,
	})

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"train_name":                   "t",
		"version_code":                 int64(6),
		"experiment_ids":               []int64{999},
		"status":                       int64(StatusInstallerRollbackInitiated),
		"is_rollback":                  true,
		"requires_staging":             false,
		"rollback_enabled":             true,
		"requires_low_latency_monitor": false,
	}}

	HandleBinaryPush(store, event)

	assert.Equal(t, true, event.Bool("requires_staging"))
	assert.Equal(t, false, event.Bool("rollback_enabled"))
	assert.Equal(t, true, event.Bool("requires_low_latency_monitor"))
	assert.Equal(t, []int64{100, 102}, event.Int64Slice("experiment_ids"))

	raw, ok := store.ReadTrainInfo("t")
	require.True(t, ok)
	disk, ok := DecodeInfo(raw)
	require.True(t, ok)
	assert.Equal(t, []int64{100, 102}, disk.ExperimentIds)
}

func TestBinaryPushUnknownTrainPassesThroughUnchanged(t *testing.T) {
	store := newFakeStore()

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"train_name":     "unknown",
		"version_code":   int64(7),
		"experiment_ids": []int64{42},
		"status":         int64(StatusInstallSuccess),
		"is_rollback":    false,
	}}

	HandleBinaryPush(store, event)

	assert.Equal(t, int64(7), event.Int64("version_code"))
	assert.Equal(t, []int64{42}, event.Int64Slice("experiment_ids"))

	_, ok := store.ReadTrainInfo("unknown")
	assert.False(t, ok, "disk is not written for a train with no existing install record")
}

func TestWatchdogRollbackInitiateAppendsDerivedId(t *testing.T) {
	store := newFakeStore()
	store.put(Info{TrainName: "pkg", ExperimentIds: []int64{200}})

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"rollback_type": int64(RollbackInitiate),
		"package_name":  "pkg",
	}}

	HandleWatchdogRollback(store, event)

	assert.Equal(t, []int64{200, 204}, event.Int64Slice("experiment_ids"))

	raw, ok := store.ReadTrainInfo("pkg")
	require.True(t, ok)
	disk, ok := DecodeInfo(raw)
	require.True(t, ok)
	assert.Equal(t, []int64{200, 204}, disk.ExperimentIds)
}

func TestWatchdogRollbackNoOpWhenTrainInfoMissing(t *testing.T) {
	store := newFakeStore()

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"rollback_type": int64(RollbackSuccess),
		"package_name":  "pkg",
	}}

	HandleWatchdogRollback(store, event)

	assert.Nil(t, event.Int64Slice("experiment_ids"))
	_, ok := store.ReadTrainInfo("pkg")
	assert.False(t, ok)
}

func TestWatchdogRollbackNoOpWhenExperimentIdsEmpty(t *testing.T) {
	store := newFakeStore()
	store.put(Info{TrainName: "pkg", ExperimentIds: nil})

	event := &atom.Event{Valid: true, Fields: map[string]any{
		"rollback_type": int64(RollbackSuccess),
		"package_name":  "pkg",
	}}

	HandleWatchdogRollback(store, event)

	assert.Nil(t, event.Int64Slice("experiment_ids"))
}
