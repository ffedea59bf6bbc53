// SPDX-License-Identifier: GPL-3.0-or-later

// Command statsdcored wires the Log Event Processor core
// (internal/processor) into a standalone daemon: it seeds configs from
// a directory of YAML files, reads atoms as newline-delimited JSON on
// stdin, and drives the periodic disk-write / active-config-save
// maintenance spec.md §4.1 expects a host process to schedule.
//
// The transport that would decode real atoms off a socket and the RPC
// surface that would carry OnConfigUpdated/QuerySql calls in are both
// out of scope (spec.md §1); this binary is the minimal host a stand-in
// transport could plug into, in the shape of the teacher's
// cmd/godplugin entrypoint.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/netdata/statsd-core/config"
	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/clock"
	"github.com/netdata/statsd-core/internal/configkey"
	"github.com/netdata/statsd-core/internal/eventfilter"
	"github.com/netdata/statsd-core/internal/logger"
	"github.com/netdata/statsd-core/internal/metricsmgr"
	"github.com/netdata/statsd-core/internal/processor"
	"github.com/netdata/statsd-core/internal/statsdconfig"
	"github.com/netdata/statsd-core/internal/statsdstats"
	"github.com/netdata/statsd-core/internal/storage"
	"github.com/netdata/statsd-core/internal/trigger"
	"github.com/netdata/statsd-core/internal/uidmap"
)

func main() {
	var (
		varLibDir    = pflag.String("var-lib-dir", "/var/lib/statsd-core", "root of the on-disk Storage layout (spec.md §6)")
		configsDir   = pflag.String("configs-dir", "", "directory of <uid>_<id>.yaml config files to install at startup")
		tunablesFile = pflag.String("tunables", "", "YAML file overriding the default Tunables (spec.md §6)")
		logLevel     = pflag.String("log-level", "info", "error|warning|notice|info|debug")
		bucketSizeNs = pflag.Int64("bucket-size-ns", int64(time.Minute), "BucketedCount manager bucket width")
		maintPeriod  = pflag.Duration("maintenance-period", 15*time.Second, "how often to run the disk-write / active-config-save tick")
	)
	pflag.Parse()

	logger.Level.SetByName(*logLevel)
	log := logger.New().With("component", "statsdcored")

	tun := config.Defaults()
	if *tunablesFile != "" {
		raw, err := os.ReadFile(*tunablesFile)
		if err != nil {
			log.Errorf("read tunables file: %v", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(raw, &tun); err != nil {
			log.Errorf("parse tunables file: %v", err)
			os.Exit(1)
		}
	}
	tun = tun.WithDefaults()

	store := storage.New(*varLibDir)
	if err := store.EnsureDirs(); err != nil {
		log.Errorf("ensure storage dirs under %s: %v", *varLibDir, err)
		os.Exit(1)
	}

	uidMap := uidmap.New()
	filter := eventfilter.New()
	stats := statsdstats.New()
	clk := clock.NewSystemClock()

	managerFactory := func(cfg statsdconfig.Config, timeBaseNs, nowNs int64) metricsmgr.Manager {
		return metricsmgr.NewBucketedCount(cfg, *bucketSizeNs, timeBaseNs, nowNs)
	}

	callbacks := processor.Callbacks{
		SendBroadcast: func(key configkey.Key) bool {
			log.Infof("data broadcast for %s", key)
			return true
		},
		SendActivationBroadcast: func(uid int32, configIds []int64) bool {
			log.Infof("activation broadcast for uid=%d configIds=%v", uid, configIds)
			return true
		},
		SendRestrictedMetricsBroadcast: func(key configkey.Key, delegatePackage string, configIds []int64) {
			log.Infof("restricted-metrics broadcast for %s delegate=%s configIds=%v", key, delegatePackage, configIds)
		},
	}

	p := processor.New(
		store, uidMap, filter, stats, clk, tun,
		managerFactory, callbacks,
		processor.WithConfigDecoder(statsdconfig.DecodeYAML),
		processor.WithRestrictedDBOpener(restrictedDBOpener(store, log)),
		processor.WithRestrictedMetricsPolicy(true, 0),
		processor.WithDaemonUid(1000),
	)

	// OnStatsdInitCompleted should only reach the State Manager once
	// both the initial config set and the prior run's persisted state
	// have been restored; a MultiConditionTrigger fires it exactly once,
	// regardless of which of the two finishes last.
	ready := trigger.New([]string{"configs-loaded", "disk-state-restored"}, p.OnStatsdInitCompleted)

	if *configsDir != "" {
		loadConfigsFromDir(p, *configsDir, log)
	}
	ready.MarkComplete("configs-loaded")

	p.LoadActiveConfigsFromDisk()
	p.LoadMetadataFromDisk()
	ready.MarkComplete("disk-state-restored")
	ready.Wait()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := clock.NewTimeScheduler()
	stopMaintenance := scheduleMaintenance(sched, *maintPeriod, func() {
		runMaintenanceTick(p, clk)
	})
	defer stopMaintenance.Cancel()

	log.Infof("statsdcored started, var-lib-dir=%s", *varLibDir)
	readAtomsFromStdin(ctx, p, log)

	p.SaveActiveConfigsToDisk()
	p.SaveMetadataToDisk()
	log.Infof("statsdcored stopped")
}

// restrictedDBOpener opens (and file-locks, per spec.md §5's one-file-
// per-key layout) the sqlite file backing one restricted-metrics
// ConfigKey. modernc.org/sqlite is a pure-Go driver, avoiding the cgo
// dependency a C sqlite binding would add to this binary.
func restrictedDBOpener(store *storage.Store, log *logger.Logger) func(configkey.Key) (*sql.DB, error) {
	return func(key configkey.Key) (*sql.DB, error) {
		ok, err := store.LockRestrictedDb(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("restricted db for %s is locked by another process", key)
		}
		db, err := sql.Open("sqlite", store.RestrictedDbPath(key))
		if err != nil {
			store.UnlockRestrictedDb(key)
			return nil, err
		}
		log.Debugf("opened restricted db for %s at %s", key, store.RestrictedDbPath(key))
		return db, nil
	}
}

// loadConfigsFromDir installs every "<uid>_<id>.yaml" file in dir,
// matching the "<uid>_<id>" naming storage.Store uses for its
// stats-config files.
func loadConfigsFromDir(p *processor.Processor, dir string, log *logger.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Errorf("read configs dir %s: %v", dir, err)
		return
	}
	now := time.Now().UnixNano()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		key, ok := parseConfigFileName(entry.Name())
		if !ok {
			log.Warningf("skip config file with unrecognized name: %s", entry.Name())
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Errorf("read config file %s: %v", entry.Name(), err)
			continue
		}
		cfg, ok := statsdconfig.DecodeYAML(raw)
		if !ok {
			log.Warningf("skip invalid config file %s", entry.Name())
			continue
		}
		p.OnConfigUpdated(now, now, key, cfg, false)
		log.Infof("installed config %s from %s", key, entry.Name())
	}
}

func parseConfigFileName(name string) (configkey.Key, bool) {
	stem := strings.TrimSuffix(name, ".yaml")
	parts := strings.SplitN(stem, "_", 2)
	if len(parts) != 2 {
		return configkey.Key{}, false
	}
	uid, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return configkey.Key{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return configkey.Key{}, false
	}
	return configkey.Key{Uid: int32(uid), Id: id}, true
}

// scheduleMaintenance re-arms itself on clock.Scheduler after every
// fire, the one-shot-timer primitive's answer to a recurring tick. The
// handle is mutex-guarded since it is written from the timer goroutine
// and read from whichever goroutine cancels it.
func scheduleMaintenance(sched clock.Scheduler, period time.Duration, fn func()) clock.AlarmHandle {
	var mu sync.Mutex
	var handle clock.AlarmHandle
	var stopped bool

	var tick func()
	tick = func() {
		fn()
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			handle = sched.ScheduleAlarm(period, tick)
		}
	}

	mu.Lock()
	handle = sched.ScheduleAlarm(period, tick)
	mu.Unlock()

	return cancelFunc(func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		handle.Cancel()
	})
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }

func runMaintenanceTick(p *processor.Processor, clk clock.Clock) {
	elapsedNs, wallNs := clk.ElapsedNs(), clk.WallNs()
	p.WriteDataToDisk(processor.DumpReasonPeriodicFlush, 0, elapsedNs, wallNs)
	p.SaveActiveConfigsToDisk()
	p.SaveMetadataToDisk()
}

// wireEvent is the newline-delimited JSON shape this binary accepts on
// stdin as a stand-in for the out-of-scope atom-decoding transport
// (spec.md §1).
type wireEvent struct {
	AtomId    int32          `json:"atom_id"`
	ElapsedNs int64          `json:"elapsed_ns"`
	WallNs    int64          `json:"wall_ns"`
	LoggerUid int32          `json:"logger_uid"`
	Valid     bool           `json:"valid"`
	Fields    map[string]any `json:"fields"`
}

func readAtomsFromStdin(ctx context.Context, p *processor.Processor, log *logger.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			event, err := decodeWireEvent(line)
			if err != nil {
				log.Warningf("decode atom: %v", err)
				continue
			}
			p.OnLogEvent(event)
		}
	}
}

func decodeWireEvent(line string) (*atom.Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return nil, err
	}
	return &atom.Event{
		AtomId:    atom.Id(w.AtomId),
		ElapsedNs: w.ElapsedNs,
		WallNs:    w.WallNs,
		LoggerUid: w.LoggerUid,
		Valid:     w.Valid,
		Fields:    normalizeFields(w.Fields),
	}, nil
}

// normalizeFields converts encoding/json's float64 decode of every
// numeric field into the int64/[]int64 shapes atom.Event's typed
// accessors expect, since the wire event format here has no schema to
// decode numbers with their intended width directly.
func normalizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case float64:
			out[k] = int64(t)
		case []any:
			nums := make([]int64, 0, len(t))
			allNums := true
			for _, elem := range t {
				f, ok := elem.(float64)
				if !ok {
					allNums = false
					break
				}
				nums = append(nums, int64(f))
			}
			if allNums {
				out[k] = nums
			} else {
				out[k] = t
			}
		default:
			out[k] = v
		}
	}
	return out
}
