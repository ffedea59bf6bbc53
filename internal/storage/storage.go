// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage implements the opaque-directory persistence contract
// of spec.md §6: durable byte-blobs keyed by (config, timestamp),
// train-info records, active-config and metadata snapshots, and the
// config blob a TTL reset re-reads. Writes go through the teacher's
// filepersister.Save (best-effort os.WriteFile, logged on failure) and
// restricted-DB files are guarded by filelock (per-name advisory lock
// via github.com/gofrs/flock).
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/logger"
	"github.com/netdata/statsd-core/internal/storage/filelock"
	"github.com/netdata/statsd-core/internal/storage/filepersister"
)

// rawBytes adapts a plain []byte to filepersister.Data's Bytes() side so
// Store can reuse the teacher's best-effort, logged write path for every
// blob it persists, instead of calling os.WriteFile directly.
type rawBytes []byte

func (b rawBytes) Bytes() ([]byte, error) { return b, nil }

const (
	dirActiveMetric   = "stats-active-metric"
	dirMetadata       = "stats-metadata"
	dirData           = "stats-data"
	dirDataHistory    = "stats-data-history"
	dirTrainInfo      = "train-info"
	dirRestrictedData = "stats-restricted-data"
	dirConfig         = "stats-config"

	activeMetricsFile = "active_metrics"
	metadataFile      = "metadata"
)

// Store is the filesystem-backed Storage surface.
type Store struct {
	root   string
	locker *filelock.Locker
	log    *logger.Logger
}

func New(root string) *Store {
	return &Store{
		root:   root,
		locker: filelock.New(filepath.Join(root, dirRestrictedData)),
		log:    logger.New().With("component", "storage"),
	}
}

// EnsureDirs creates the six (plus config) directories the layout needs.
func (s *Store) EnsureDirs() error {
	for _, d := range []string{dirActiveMetric, dirMetadata, dirData, dirDataHistory, dirTrainInfo, dirRestrictedData, dirConfig} {
		if err := os.MkdirAll(filepath.Join(s.root, d), 0o755); err != nil {
			return fmt.Errorf("storage: ensure dir %s: %w", d, err)
		}
	}
	return nil
}

func keyFilePrefix(wallSec int64, key configkey.Key) string {
	return fmt.Sprintf("%d_%d_%d", wallSec, key.Uid, key.Id)
}

// --- config blob (spec_full.md added path) ---

func (s *Store) configPath(key configkey.Key) string {
	return filepath.Join(s.root, dirConfig, fmt.Sprintf("%d_%d", key.Uid, key.Id))
}

func (s *Store) WriteConfig(key configkey.Key, raw []byte) {
	filepersister.Save(s.configPath(key), rawBytes(raw))
}

func (s *Store) ReadConfig(key configkey.Key) ([]byte, bool) {
	b, err := os.ReadFile(s.configPath(key))
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Store) DeleteConfig(key configkey.Key) {
	_ = os.Remove(s.configPath(key))
}

// --- reports (stats-data) ---

func (s *Store) WriteReport(key configkey.Key, wallSec int64, data []byte) {
	name := filepath.Join(s.root, dirData, keyFilePrefix(wallSec, key))
	filepersister.Save(name, rawBytes(data))
}

// ReadAndOptionallyDeleteReports returns every previously persisted
// report blob for key, in ascending-filename order, and deletes the
// files that were read when erase is true (onDumpReport's "append...
// and delete" behavior, spec.md §4.1).
func (s *Store) ReadAndOptionallyDeleteReports(key configkey.Key, erase bool) [][]byte {
	return s.readAndOptionallyDelete(dirData, key, erase)
}

func (s *Store) HasOnDiskReports(key configkey.Key) bool {
	return len(s.matchingFiles(dirData, key)) > 0
}

// --- local history (stats-data-history) ---

func (s *Store) WriteHistory(key configkey.Key, wallSec int64, data []byte) {
	name := filepath.Join(s.root, dirDataHistory, keyFilePrefix(wallSec, key))
	filepersister.Save(name, rawBytes(data))
}

func (s *Store) ListHistoryFiles(key configkey.Key) []string {
	return s.matchingFiles(dirDataHistory, key)
}

func (s *Store) DeleteAllHistoryFiles(key configkey.Key) {
	for _, f := range s.matchingFiles(dirDataHistory, key) {
		_ = os.Remove(f)
	}
}

func (s *Store) readAndOptionallyDelete(dir string, key configkey.Key, erase bool) [][]byte {
	files := s.matchingFiles(dir, key)
	out := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		out = append(out, b)
		if erase {
			_ = os.Remove(f)
		}
	}
	return out
}

func (s *Store) matchingFiles(dir string, key configkey.Key) []string {
	suffix := fmt.Sprintf("_%d_%d", key.Uid, key.Id)
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(s.root, dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// --- train info ---

func (s *Store) trainInfoPath(trainName string) string {
	return filepath.Join(s.root, dirTrainInfo, trainName)
}

func (s *Store) WriteTrainInfo(trainName string, data []byte) {
	filepersister.Save(s.trainInfoPath(trainName), rawBytes(data))
}

func (s *Store) ReadTrainInfo(trainName string) ([]byte, bool) {
	b, err := os.ReadFile(s.trainInfoPath(trainName))
	if err != nil {
		return nil, false
	}
	return b, true
}

// --- active config list / metadata ---

func (s *Store) activeMetricsPath() string {
	return filepath.Join(s.root, dirActiveMetric, activeMetricsFile)
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.root, dirMetadata, metadataFile)
}

func (s *Store) WriteActiveConfigList(data []byte) {
	filepersister.Save(s.activeMetricsPath(), rawBytes(data))
}

// ReadActiveConfigList returns the persisted bytes, or nil if none
// exist or they could not be read (recoverable per spec.md §7: the
// caller starts empty).
func (s *Store) ReadActiveConfigList() []byte {
	b, err := os.ReadFile(s.activeMetricsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debugf("failed to read active config list, deleting: %v", err)
			_ = os.Remove(s.activeMetricsPath())
		}
		return nil
	}
	return b
}

func (s *Store) WriteMetadata(data []byte) {
	filepersister.Save(s.metadataPath(), rawBytes(data))
}

func (s *Store) ReadMetadata() []byte {
	b, err := os.ReadFile(s.metadataPath())
	if err != nil {
		if !os.IsNotExist(err) {
			_ = os.Remove(s.metadataPath())
		}
		return nil
	}
	return b
}

// --- restricted DB files / guardrails ---

func (s *Store) RestrictedDbPath(key configkey.Key) string {
	return filepath.Join(s.root, dirRestrictedData, fmt.Sprintf("%d_%d.db", key.Uid, key.Id))
}

func (s *Store) LockRestrictedDb(key configkey.Key) (bool, error) {
	ok, err := s.locker.Lock(filepath.Base(s.RestrictedDbPath(key)))
	if err != nil {
		return false, fmt.Errorf("storage: lock restricted db %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) UnlockRestrictedDb(key configkey.Key) {
	s.locker.Unlock(filepath.Base(s.RestrictedDbPath(key)))
}

func (s *Store) DeleteRestrictedDb(key configkey.Key) {
	s.UnlockRestrictedDb(key)
	_ = os.Remove(s.RestrictedDbPath(key))
}

// EnforceDbGuardrails deletes any restricted DB file older than
// maxAgeSec or larger than maxBytes, mirroring
// StorageManager::enforceDbGuardrails in the original implementation.
func (s *Store) EnforceDbGuardrails(nowWallSec int64, maxBytes int64, maxAgeSec int64) {
	dir := filepath.Join(s.root, dirRestrictedData)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		tooBig := info.Size() > maxBytes
		tooOld := maxAgeSec > 0 && nowWallSec-info.ModTime().Unix() > maxAgeSec
		if tooBig || tooOld {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
