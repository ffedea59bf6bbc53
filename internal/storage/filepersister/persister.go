// SPDX-License-Identifier: GPL-3.0-or-later

// Package filepersister writes a blob to a file on a best-effort basis,
// logging a failed write instead of returning it. Save writes once,
// synchronously; Persister.Run additionally offers a debounced loop
// that coalesces update notifications into periodic writes.
// internal/storage writes every blob through Save and does not use Run.
// Adapted from the teacher's collector-instance-state persister.
package filepersister

import (
	"context"
	"os"
	"time"

	"github.com/netdata/statsd-core/internal/logger"
)

type Data interface {
	Bytes() ([]byte, error)
	Updated() <-chan struct{}
}

func Save(path string, data interface{ Bytes() ([]byte, error) }) {
	if path == "" {
		return
	}
	New(path).flush(data)
}

func New(path string) *Persister {
	return &Persister{
		Logger: logger.New().With(
			"component", "file persister",
			"file", path,
		),
		FlushEvery: time.Minute * 1,
		filepath:   path,
		flushCh:    make(chan struct{}, 1),
	}
}

type Persister struct {
	*logger.Logger

	FlushEvery time.Duration

	data     Data
	filepath string
	flushCh  chan struct{}
}

func (p *Persister) Run(ctx context.Context, data Data) {
	p.Info("instance is started")
	defer func() { p.Info("instance is stopped") }()

	p.data = data

	tk := time.NewTicker(p.FlushEvery)
	defer tk.Stop()
	defer p.flush(p.data)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.data.Updated():
			p.triggerFlush()
		case <-tk.C:
			p.tryFlush()
		}
	}
}

func (p *Persister) triggerFlush() {
	select {
	case p.flushCh <- struct{}{}:
	default:
		// already has a pending flush
	}
}

func (p *Persister) tryFlush() {
	select {
	case <-p.flushCh:
		p.flush(p.data)
	default:
		// no pending flush
	}
}

func (p *Persister) flush(data interface{ Bytes() ([]byte, error) }) {
	bs, err := data.Bytes()
	if err != nil {
		p.Debugf("failed to marshal data: %v", err)
		return
	}

	if err := os.WriteFile(p.filepath, bs, 0644); err != nil {
		p.Warningf("failed to write file: %v", err)
		return
	}

	p.Debug("file persisted successfully")
}
