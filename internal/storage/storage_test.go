// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/internal/configkey"
)

func TestEnsureDirsAndConfigRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	key := configkey.Key{Uid: 1000, Id: 42}

	_, ok := s.ReadConfig(key)
	assert.False(t, ok)

	s.WriteConfig(key, []byte("config-bytes"))
	b, ok := s.ReadConfig(key)
	require.True(t, ok)
	assert.Equal(t, []byte("config-bytes"), b)

	s.DeleteConfig(key)
	_, ok = s.ReadConfig(key)
	assert.False(t, ok)
}

func TestReportsWrittenAndDeletedInOrder(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	key := configkey.Key{Uid: 5, Id: 9}
	s.WriteReport(key, 100, []byte("first"))
	s.WriteReport(key, 200, []byte("second"))

	assert.True(t, s.HasOnDiskReports(key))

	blobs := s.ReadAndOptionallyDeleteReports(key, true)
	require.Len(t, blobs, 2)
	assert.Equal(t, []byte("first"), blobs[0])
	assert.Equal(t, []byte("second"), blobs[1])

	assert.False(t, s.HasOnDiskReports(key))
}

func TestHistoryFilesListedAndCleared(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	key := configkey.Key{Uid: 3, Id: 7}
	other := configkey.Key{Uid: 3, Id: 8}

	s.WriteHistory(key, 1, []byte("a"))
	s.WriteHistory(key, 2, []byte("b"))
	s.WriteHistory(other, 1, []byte("c"))

	assert.Len(t, s.ListHistoryFiles(key), 2)
	assert.Len(t, s.ListHistoryFiles(other), 1)

	s.DeleteAllHistoryFiles(key)
	assert.Empty(t, s.ListHistoryFiles(key))
	assert.Len(t, s.ListHistoryFiles(other), 1)
}

func TestActiveConfigListAndMetadataRecoverFromCorruption(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	assert.Nil(t, s.ReadActiveConfigList())
	s.WriteActiveConfigList([]byte("list"))
	assert.Equal(t, []byte("list"), s.ReadActiveConfigList())

	assert.Nil(t, s.ReadMetadata())
	s.WriteMetadata([]byte("meta"))
	assert.Equal(t, []byte("meta"), s.ReadMetadata())
}

func TestRestrictedDbLockPreventsSecondLocker(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	key := configkey.Key{Uid: 1, Id: 1}
	ok, err := s.LockRestrictedDb(key)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-locking through the same Store is idempotent (matches
	// filelock.Locker's own already-held short-circuit).
	ok, err = s.LockRestrictedDb(key)
	require.NoError(t, err)
	assert.True(t, ok)

	s.UnlockRestrictedDb(key)
}

func TestTrainInfoRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	_, ok := s.ReadTrainInfo("some-train")
	assert.False(t, ok)

	s.WriteTrainInfo("some-train", []byte("v1"))
	b, ok := s.ReadTrainInfo("some-train")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), b)
}
