// SPDX-License-Identifier: GPL-3.0-or-later

// Package statsdconfig defines the StatsdConfig blob record referenced by
// spec.md §3. Parsing/validating the full configuration DSL is out of
// scope (spec.md §1); this package only carries the handful of fields
// the Log Event Processor itself inspects before handing the blob to a
// Metrics Manager.
package statsdconfig

import "gopkg.in/yaml.v3"

// Config is the opaque configuration blob plus the fields the core reads
// directly (spec.md §4.1 OnConfigUpdated: restricted-delegate comparison,
// TTL, declared atom ids for the Event Filter).
type Config struct {
	// Raw is the opaque bytes a real daemon would hand to protobuf
	// unmarshalling; OnConfigUpdated persists it and the TTL-reset
	// reload reads it back, so a config round-trips without this
	// package knowing its shape.
	Raw []byte

	RestrictedMetricsDelegatePackageName string
	TtlNs                                int64
	DeclaredAtomIds                      []int32
	MaxMetricsBytes                      int
	TriggerGetDataBytes                  int
	PersistLocalHistory                  bool
	WriteToDisk                          bool

	// Valid lets tests construct a deliberately invalid config (spec.md
	// §4.1 "On any invalid config") without a real parser to fail.
	Valid bool
}

func (c Config) HasRestrictedMetricsDelegate() bool {
	return c.RestrictedMetricsDelegatePackageName != ""
}

// yamlConfig is the on-disk shape a daemon's own config files use; it
// exists only here, next to Config, since the real wire blob's schema
// is out of scope (spec.md §1) and this is a stand-in for it.
type yamlConfig struct {
	RestrictedMetricsDelegatePackageName string  `yaml:"restricted_metrics_delegate_package_name"`
	TtlNs                                int64   `yaml:"ttl_ns"`
	DeclaredAtomIds                      []int32 `yaml:"declared_atom_ids"`
	MaxMetricsBytes                      int     `yaml:"max_metrics_bytes"`
	TriggerGetDataBytes                  int     `yaml:"trigger_get_data_bytes"`
	PersistLocalHistory                  bool    `yaml:"persist_local_history"`
	WriteToDisk                          bool    `yaml:"write_to_disk"`
}

// DecodeYAML turns a YAML config file into a Config, for use both as the
// processor's TTL-reset reload decoder (processor.WithConfigDecoder) and
// for seeding configs at daemon startup. raw is kept as Config.Raw so a
// reload round-trips the same bytes it was given.
func DecodeYAML(raw []byte) (Config, bool) {
	var y yamlConfig
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return Config{}, false
	}
	return Config{
		Raw:                                  raw,
		RestrictedMetricsDelegatePackageName: y.RestrictedMetricsDelegatePackageName,
		TtlNs:                                y.TtlNs,
		DeclaredAtomIds:                      y.DeclaredAtomIds,
		MaxMetricsBytes:                      y.MaxMetricsBytes,
		TriggerGetDataBytes:                  y.TriggerGetDataBytes,
		PersistLocalHistory:                  y.PersistLocalHistory,
		WriteToDisk:                          y.WriteToDisk,
		Valid:                                true,
	}, true
}
