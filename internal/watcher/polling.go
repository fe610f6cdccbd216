package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher watches for changes by periodically walking the tree. It is
// the fallback when fsnotify is unavailable.
type PollingWatcher struct {
	interval  time.Duration
	filter    *filter
	opts      Options
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. Only Exclude and IgnoreDirs of
// opts are used besides the interval.
func NewPollingWatcher(interval time.Duration, opts Options) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		opts:      opts,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 1000),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start takes a baseline snapshot of path and then polls until Stop is
// called or ctx is done.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", absPath)
	}

	p.mu.Lock()
	p.filter = newFilter(absPath, p.opts)
	p.fileState = p.snapshot()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// Stop stops polling and closes the channels.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot walks the tree. Must be called with lock held.
func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(p.filter.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := p.filter.relative(path)
		if rel == "." {
			return nil
		}
		if p.filter.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state
}

// detectChanges compares a fresh snapshot with the previous one and emits
// the difference.
func (p *PollingWatcher) detectChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if _, err := os.Stat(p.filter.root); err != nil {
		select {
		case p.errors <- fmt.Errorf("watch root unavailable: %w", err):
		default:
		}
		return
	}

	current := p.snapshot()
	now := time.Now()
	for rel, snap := range current {
		prev, exists := p.fileState[rel]
		switch {
		case !exists:
			p.emitEvent(FileEvent{Path: rel, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			p.emitEvent(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, snap := range p.fileState {
		if _, exists := current[rel]; !exists {
			p.emitEvent(FileEvent{Path: rel, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}
	p.fileState = current
}

// emitEvent sends an event without blocking. Must be called with lock held.
func (p *PollingWatcher) emitEvent(event FileEvent) {
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_watcher_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
