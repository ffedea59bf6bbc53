// SPDX-License-Identifier: GPL-3.0-or-later

// Package config holds the Log Event Processor's tunables (spec.md §6).
// Decoding config files is out of scope for the core itself, but the
// tunables are YAML-decodable so a daemon can load them the way the
// teacher's collector configs are loaded.
package config

import "time"

// Tunables are the per-category rate limiters and guardrails spec.md §6
// enumerates. Zero values fall back to the defaults below via
// WithDefaults.
type Tunables struct {
	WriteDataCoolDown               time.Duration `yaml:"write_data_cool_down"`
	PullerCacheClearInterval        time.Duration `yaml:"puller_cache_clear_interval"`
	MinTtlCheckPeriod               time.Duration `yaml:"min_ttl_check_period"`
	MinFlushRestrictedPeriod        time.Duration `yaml:"min_flush_restricted_period"`
	MinDbGuardrailEnforcementPeriod time.Duration `yaml:"min_db_guardrail_enforcement_period"`
	MinByteSizeCheckPeriod          time.Duration `yaml:"min_byte_size_check_period"`
	MinBroadcastPeriod              time.Duration `yaml:"min_broadcast_period"`
	MinActivationBroadcastPeriod    time.Duration `yaml:"min_activation_broadcast_period"`
	BytesPerRestrictedConfigTrigger int           `yaml:"bytes_per_restricted_config_trigger_flush"`
	MaxRestrictedDbFileBytes        int64         `yaml:"max_restricted_db_file_bytes"`
}

// Defaults mirrors the literal defaults named in spec.md §6.
func Defaults() Tunables {
	return Tunables{
		WriteDataCoolDown:               15 * time.Second,
		PullerCacheClearInterval:        15 * time.Minute,
		MinTtlCheckPeriod:               time.Hour,
		MinFlushRestrictedPeriod:        time.Hour,
		MinDbGuardrailEnforcementPeriod: time.Hour,
		MinByteSizeCheckPeriod:          5 * time.Second,
		MinBroadcastPeriod:              time.Minute,
		MinActivationBroadcastPeriod:    10 * time.Minute,
		BytesPerRestrictedConfigTrigger: 192 * 1024,
		MaxRestrictedDbFileBytes:        20 * 1024 * 1024,
	}
}

// WithDefaults fills any zero-valued field from Defaults(), the pattern
// the teacher's collector configs use for optional YAML fields.
func (t Tunables) WithDefaults() Tunables {
	d := Defaults()
	if t.WriteDataCoolDown == 0 {
		t.WriteDataCoolDown = d.WriteDataCoolDown
	}
	if t.PullerCacheClearInterval == 0 {
		t.PullerCacheClearInterval = d.PullerCacheClearInterval
	}
	if t.MinTtlCheckPeriod == 0 {
		t.MinTtlCheckPeriod = d.MinTtlCheckPeriod
	}
	if t.MinFlushRestrictedPeriod == 0 {
		t.MinFlushRestrictedPeriod = d.MinFlushRestrictedPeriod
	}
	if t.MinDbGuardrailEnforcementPeriod == 0 {
		t.MinDbGuardrailEnforcementPeriod = d.MinDbGuardrailEnforcementPeriod
	}
	if t.MinByteSizeCheckPeriod == 0 {
		t.MinByteSizeCheckPeriod = d.MinByteSizeCheckPeriod
	}
	if t.MinBroadcastPeriod == 0 {
		t.MinBroadcastPeriod = d.MinBroadcastPeriod
	}
	if t.MinActivationBroadcastPeriod == 0 {
		t.MinActivationBroadcastPeriod = d.MinActivationBroadcastPeriod
	}
	if t.BytesPerRestrictedConfigTrigger == 0 {
		t.BytesPerRestrictedConfigTrigger = d.BytesPerRestrictedConfigTrigger
	}
	if t.MaxRestrictedDbFileBytes == 0 {
		t.MaxRestrictedDbFileBytes = d.MaxRestrictedDbFileBytes
	}
	return t
}
