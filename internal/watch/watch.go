// Package watch re-runs a callback when module or fact files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

type Watcher struct {
	roots    []string
	files    map[string]struct{}
	debounce time.Duration
	log      *zap.Logger
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithFiles also watches individual files that may live outside the roots,
// such as the project settings file. Only their parent directory is watched,
// not its subtree.
func WithFiles(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			if strings.TrimSpace(p) != "" {
				w.files[filepath.Clean(p)] = struct{}{}
			}
		}
	}
}

// New watches roots recursively. Roots are cleaned, and a root nested in
// another one is dropped.
func New(roots []string, opts ...Option) *Watcher {
	w := &Watcher{roots: Roots(roots), files: map[string]struct{}{}, debounce: defaultDebounce, log: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Roots cleans roots and drops duplicates and roots inside another root,
// keeping first-seen order.
func Roots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		r = filepath.Clean(strings.TrimSpace(r))
		nested := false
		for i, kept := range out {
			switch {
			case within(kept, r):
				nested = true
			case within(r, kept):
				out[i] = r
				nested = true
			}
		}
		if !nested {
			out = append(out, r)
		}
	}
	// Widening a kept root can swallow a later one.
	final := out[:0]
	for _, r := range out {
		dup := false
		for _, kept := range final {
			if within(kept, r) {
				dup = true
				break
			}
		}
		if !dup {
			final = append(final, r)
		}
	}
	return final
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// accepts reports whether a change to path should trigger onChange.
func (w *Watcher) accepts(path string) bool {
	path = filepath.Clean(path)
	if _, ok := w.files[path]; ok {
		return true
	}
	if !relevant(path) {
		return false
	}
	for _, root := range w.roots {
		if within(root, path) {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path can affect a compile.
func relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Run watches the roots until ctx ends. onChange receives the changed paths,
// sorted, once no further change arrived for the debounce interval.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	for _, root := range w.roots {
		if err := w.addTree(fw, root); err != nil {
			return err
		}
	}
	for file := range w.files {
		dir := filepath.Dir(file)
		if w.covered(dir) {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.log.Warn("watch file directory failed", zap.String("path", dir), zap.Error(err))
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && w.covered(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.log.Warn("watch new directory failed", zap.String("path", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 || !w.accepts(event.Name) {
				continue
			}
			w.log.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			onChange(ctx, changed)
		}
	}
}

// covered reports whether dir is watched as part of a root tree.
func (w *Watcher) covered(dir string) bool {
	for _, root := range w.roots {
		if within(root, dir) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.log.Debug("watching", zap.String("dir", path))
		return nil
	})
}
