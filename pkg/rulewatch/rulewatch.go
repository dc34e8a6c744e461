// Package rulewatch imports a rule group file and re-imports it whenever it
// changes on disk.
package rulewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/rules"
)

// DefaultDebounce coalesces bursts of writes from editors.
const DefaultDebounce = 500 * time.Millisecond

// Importer stores rule groups.
type Importer interface {
	ImportRuleGroups(ctx context.Context, groups []rules.TagRuleGroup) error
}

// LoadFile reads a JSON array of rule groups.
func LoadFile(path string) ([]rules.TagRuleGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return rules.ParseGroups(data)
}

// Watcher monitors a rule file and imports it on change.
type Watcher struct {
	path     string
	importer Importer
	debounce time.Duration
	logger   *slog.Logger

	imports atomic.Int64
}

// NewWatcher creates a Watcher for path. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(path string, importer Importer, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{path: absPath, importer: importer, debounce: debounce, logger: log}, nil
}

// Imports returns how many times the file was imported successfully.
func (w *Watcher) Imports() int {
	return int(w.imports.Load())
}

// Run imports the file once and then after every change until ctx is
// cancelled. Failed imports are logged and the previous rules stay active.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsWatcher.Close()

	// Watching the directory survives editors that replace the file.
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	w.reload(ctx)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != w.path {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload(ctx)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rule watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	groups, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to load rule file", "path", w.path, "error", err)
		return
	}
	if err := w.importer.ImportRuleGroups(ctx, groups); err != nil {
		w.logger.Warn("failed to import rule file", "path", w.path, "error", err)
		return
	}
	w.imports.Add(1)
	w.logger.Info("imported rule file", "path", w.path, "groups", len(groups))
}
