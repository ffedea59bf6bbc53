// SPDX-License-Identifier: GPL-3.0-or-later

// Package train implements the two hard-coded atom handlers spec.md
// §4.1.a/§4.1.b describe: binary-push-state-changed and
// watchdog-rollback-occurred. Both load an InstallTrainInfo record,
// mutate its experiment-id list, persist it, and rewrite fields on the
// in-flight event before it is fanned out to Metrics Managers.
package train

import (
	"encoding/json"

	"github.com/netdata/statsd-core/internal/atom"
)

// Status is the binary-push install status the event carries.
type Status int32

const (
	StatusUnknown Status = iota
	StatusInstallSuccess
	StatusInstallerRollbackInitiated
	StatusInstallerRollbackSuccess
)

// RollbackType is the watchdog-rollback kind the event carries.
type RollbackType int32

const (
	RollbackUnknown RollbackType = iota
	RollbackInitiate
	RollbackSuccess
)

// Info is the InstallTrainInfo record (spec.md §3), persisted keyed by
// trainName/packageName under storage's train-info path.
type Info struct {
	TrainName                 string  `json:"train_name"`
	VersionCode               int64   `json:"version_code"`
	ExperimentIds             []int64 `json:"experiment_ids"`
	RequiresStaging           bool    `json:"requires_staging"`
	RollbackEnabled           bool    `json:"rollback_enabled"`
	RequiresLowLatencyMonitor bool    `json:"requires_low_latency_monitor"`
	Status                    int32   `json:"status"`
}

func DecodeInfo(b []byte) (Info, bool) {
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return Info{}, false
	}
	return info, true
}

func (i Info) Encode() []byte {
	b, _ := json.Marshal(i)
	return b
}

// Store is the subset of internal/storage.Store the handlers need,
// kept narrow so tests can fake it without a filesystem.
type Store interface {
	ReadTrainInfo(name string) ([]byte, bool)
	WriteTrainInfo(name string, data []byte)
}

// HandleBinaryPush implements spec.md §4.1.a. It mutates event in
// place and returns it for call-site convenience.
func HandleBinaryPush(store Store, event *atom.Event) *atom.Event {
	trainName := event.String("train_name")
	incomingVersion := event.Int64("version_code")
	requiresStaging := event.Bool("requires_staging")
	rollbackEnabled := event.Bool("rollback_enabled")
	requiresLowLatency := event.Bool("requires_low_latency_monitor")
	status := Status(event.Int64("status"))
	incomingExperimentIds := event.Int64Slice("experiment_ids")
	isRollback := event.Bool("is_rollback")

	raw, ok := store.ReadTrainInfo(trainName)
	if !ok {
		return event
	}
	disk, ok := DecodeInfo(raw)
	if !ok {
		return event
	}

	ids := append([]int64(nil), disk.ExperimentIds...)

	switch {
	case incomingVersion == -1:
		// keep on-disk version
	case incomingVersion != disk.VersionCode:
		ids = nil
	}

	if len(incomingExperimentIds) > 0 && len(ids) > 0 && incomingExperimentIds[0] != ids[0] {
		ids = nil
	}
	if len(ids) == 0 && len(incomingExperimentIds) > 0 {
		ids = append([]int64(nil), incomingExperimentIds...)
	}

	if isRollback {
		// ignore incoming reset, keep on-disk experiment ids
		ids = append([]int64(nil), disk.ExperimentIds...)
	}

	if len(ids) > 0 {
		first := ids[0]
		switch status {
		case StatusInstallSuccess:
			ids = append(ids, first+1)
		case StatusInstallerRollbackInitiated:
			ids = appendIfAbsent(ids, first+2)
		case StatusInstallerRollbackSuccess:
			ids = appendIfAbsent(ids, first+3)
		}
	}

	version := incomingVersion
	if incomingVersion == -1 {
		version = disk.VersionCode
	}

	updated := Info{
		TrainName:                 trainName,
		VersionCode:               version,
		ExperimentIds:             ids,
		RequiresStaging:           requiresStaging,
		RollbackEnabled:           rollbackEnabled,
		RequiresLowLatencyMonitor: requiresLowLatency,
		Status:                    int32(status),
	}
	if isRollback {
		updated.RequiresStaging = disk.RequiresStaging
		updated.RollbackEnabled = disk.RollbackEnabled
		updated.RequiresLowLatencyMonitor = disk.RequiresLowLatencyMonitor
	}

	store.WriteTrainInfo(trainName, updated.Encode())

	event.Set("version_code", updated.VersionCode)
	event.Set("experiment_ids", updated.ExperimentIds)
	event.Set("user_id", int64(event.LoggerUid))
	if isRollback {
		event.Set("requires_staging", updated.RequiresStaging)
		event.Set("rollback_enabled", updated.RollbackEnabled)
		event.Set("requires_low_latency_monitor", updated.RequiresLowLatencyMonitor)
	}
	return event
}

// HandleWatchdogRollback implements spec.md §4.1.b.
func HandleWatchdogRollback(store Store, event *atom.Event) *atom.Event {
	rollbackType := RollbackType(event.Int64("rollback_type"))
	packageName := event.String("package_name")

	raw, ok := store.ReadTrainInfo(packageName)
	if !ok {
		return event
	}
	info, ok := DecodeInfo(raw)
	if !ok || len(info.ExperimentIds) == 0 {
		return event
	}

	first := info.ExperimentIds[0]
	switch rollbackType {
	case RollbackInitiate:
		info.ExperimentIds = appendIfAbsent(info.ExperimentIds, first+4)
	case RollbackSuccess:
		info.ExperimentIds = appendIfAbsent(info.ExperimentIds, first+5)
	default:
		return event
	}

	store.WriteTrainInfo(packageName, info.Encode())
	event.Set("experiment_ids", info.ExperimentIds)
	return event
}

func appendIfAbsent(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
