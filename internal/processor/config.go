// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/statsdconfig"
)

// OnConfigUpdated installs or replaces a configuration (spec.md §4.1).
func (p *Processor) OnConfigUpdated(timestampNs, wallClockNs int64, key configkey.Key, cfg statsdconfig.Config, modularUpdate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConfigUpdatedLocked(timestampNs, wallClockNs, key, cfg, modularUpdate)
}

func (p *Processor) onConfigUpdatedLocked(timestampNs, wallClockNs int64, key configkey.Key, cfg statsdconfig.Config, modularUpdate bool) {
	existing := p.configs[key]

	if existing != nil && existing.config.HasRestrictedMetricsDelegate() != cfg.HasRestrictedMetricsDelegate() {
		modularUpdate = false
		p.store.DeleteRestrictedDb(key)
		p.restricted.Close(key)
	}

	if existing != nil {
		p.writeRecordToDiskLocked(existing, DumpReasonConfigUpdated, 0, timestampNs, wallClockNs)
	}

	if !cfg.Valid {
		if existing != nil {
			if existing.config.HasRestrictedMetricsDelegate() {
				if p.callbacks.SendRestrictedMetricsBroadcast != nil {
					p.callbacks.SendRestrictedMetricsBroadcast(key, existing.config.RestrictedMetricsDelegatePackageName, nil)
				}
				p.store.DeleteRestrictedDb(key)
				p.restricted.Close(key)
			}
			delete(p.configs, key)
			p.uidMap.OnConfigRemoved(key)
		}
		p.store.DeleteConfig(key)
		p.stats.IncDbConfigInvalid()
		p.filter.RemoveConfig(key)
		return
	}

	if modularUpdate && existing != nil {
		if existing.manager.UpdateConfig(cfg, timestampNs, timestampNs) {
			existing.config = cfg
			p.store.WriteConfig(key, cfg.Raw)
			p.filter.SetConfig(key, cfg.DeclaredAtomIds)
			return
		}
		// The manager rejected the in-place update; fall through and
		// treat this like a fresh install.
	}

	manager := p.managerFactory(cfg, timestampNs, timestampNs)
	manager.RefreshTtl(timestampNs)

	if cfg.HasRestrictedMetricsDelegate() {
		if err := p.restricted.Open(key); err != nil {
			p.log.Warningf("prepare restricted db for %s: %v", key, err)
		}
	} else {
		p.uidMap.OnConfigUpdated(key)
	}

	p.configs[key] = &configRecord{
		key:                     key,
		config:                  cfg,
		manager:                 manager,
		lastBroadcastTimeNs:     -1,
		lastByteSizeCheckTimeNs: -1,
	}
	p.store.WriteConfig(key, cfg.Raw)
	p.filter.SetConfig(key, cfg.DeclaredAtomIds)
}

// OnConfigRemoved implements spec.md §4.1's OnConfigRemoved.
func (p *Processor) OnConfigRemoved(key configkey.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.configs[key]
	if !ok {
		return
	}

	p.writeRecordToDiskLocked(rec, DumpReasonConfigRemoved, 0, p.clk.ElapsedNs(), p.clk.WallNs())

	if rec.config.HasRestrictedMetricsDelegate() {
		p.store.DeleteRestrictedDb(key)
		p.restricted.Close(key)
	}

	delete(p.configs, key)
	p.store.DeleteConfig(key)
	if rec.config.PersistLocalHistory {
		if files := p.store.ListHistoryFiles(key); len(files) > 0 {
			p.log.Debugf("removing %d local history file(s) for %s", len(files), key)
			p.store.DeleteAllHistoryFiles(key)
		}
	}
	p.uidMap.OnConfigRemoved(key)
	p.filter.RemoveConfig(key)

	stillHasUid := false
	for k := range p.configs {
		if k.Uid == key.Uid {
			stillHasUid = true
			break
		}
	}
	if !stillHasUid {
		delete(p.lastActivationBroadcastNs, key.Uid)
	}

	if len(p.configs) == 0 {
		p.pullerMgr.ClearCache()
	}
}

// resetExpiredConfigsLocked implements spec.md §4.3: after each event,
// any ConfigKey whose manager is out of TTL is reset by re-reading its
// config bytes and reinstalling a fresh manager.
func (p *Processor) resetExpiredConfigsLocked(event *atom.Event) {
	var expired []configkey.Key
	for key, rec := range p.configs {
		if !rec.manager.IsInTtl(event.ElapsedNs) {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return
	}

	p.writeAllToDiskLocked(DumpReasonConfigReset, 0, event.ElapsedNs, event.WallNs, false)

	for _, key := range expired {
		rec := p.configs[key]
		raw, ok := p.store.ReadConfig(key)
		if !ok {
			rec.manager.RefreshTtl(event.ElapsedNs)
			continue
		}
		cfg, ok := p.decodeConfigLocked(raw)
		if !ok {
			rec.manager.RefreshTtl(event.ElapsedNs)
			continue
		}
		p.onConfigUpdatedLocked(event.ElapsedNs, event.WallNs, key, cfg, false)
	}
}
