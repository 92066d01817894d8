package config

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	logx "posterbot/pkg/logx"
)

const watchOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Watch reloads the file after it changes until ctx ends.
// The parent directory is watched so editors that swap the file in are caught.
// A broken watcher is recreated with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, file := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}
	deb := &debouncer{wait: m.debounce, fn: func() { m.reload(ctx) }}
	defer deb.stop()

	bo := backoff{base: 250 * time.Millisecond, max: 5 * time.Second}
	for ctx.Err() == nil {
		w, err := openWatcher(dir)
		if err != nil {
			m.log.Warn("config watch init failed", logx.String("dir", dir), logx.Err(err))
			if !bo.sleep(ctx) {
				break
			}
			continue
		}
		bo.reset()
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		m.consume(ctx, w, file, deb)
		_ = w.Close()

		if ctx.Err() == nil {
			m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
			if !bo.sleep(ctx) {
				break
			}
		}
	}
	return nil
}

func openWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// consume feeds matching events to the debouncer until ctx ends or w breaks.
func (m *Manager) consume(ctx context.Context, w *fsnotify.Watcher, file string, deb *debouncer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&watchOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				m.log.Debug("config change detected", logx.String("op", ev.Op.String()))
				deb.touch()
			}
		case err, ok := <-w.Errors:
			if !ok || errors.Is(err, fsnotify.ErrClosed) {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				deb.touch()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

// debouncer runs fn once, wait after the last touch.
type debouncer struct {
	wait time.Duration
	fn   func()

	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		d.t = time.AfterFunc(d.wait, d.fn)
		return
	}
	d.t.Reset(d.wait)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}

type backoff struct {
	base, max, cur time.Duration
}

func (b *backoff) reset() { b.cur = 0 }

// sleep waits the current delay plus up to 50% jitter and doubles the delay.
// It reports false when ctx ended first.
func (b *backoff) sleep(ctx context.Context) bool {
	if b.cur <= 0 {
		b.cur = b.base
	}
	d := b.cur + rand.N(b.cur/2+1)
	b.cur = min(2*b.cur, b.max)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
