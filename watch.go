package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchTargets is the set of files whose changes trigger a new report, plus
// directories whose YAML files count as configuration.
type watchTargets struct {
	files      map[string]bool
	configDirs map[string]bool
}

func newWatchTargets(sources []string, configDir string) watchTargets {
	t := watchTargets{files: make(map[string]bool), configDirs: make(map[string]bool)}
	for _, p := range sources {
		if abs, err := filepath.Abs(p); err == nil {
			t.files[abs] = true
		}
	}
	if strings.TrimSpace(configDir) != "" {
		if abs, err := filepath.Abs(configDir); err == nil {
			t.configDirs[abs] = true
		}
	}
	return t
}

// dirs returns the directories to register with the watcher. Editors and
// exporters usually replace files, so parents are watched rather than files.
func (t watchTargets) dirs() []string {
	set := make(map[string]bool)
	for f := range t.files {
		set[filepath.Dir(f)] = true
	}
	for d := range t.configDirs {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (t watchTargets) relevant(evt fsnotify.Event) bool {
	if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	abs, err := filepath.Abs(evt.Name)
	if err != nil {
		return false
	}
	if t.files[abs] {
		return true
	}
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		return t.configDirs[filepath.Dir(abs)]
	}
	return false
}

// Purpose: Regenerate the report whenever a source or config file changes.
// Key aspects: Bursts of events are coalesced into one run after debounce of
// quiet; runs never overlap because they execute on this goroutine.
// Upstream: main when -watch is set.
// Downstream: fsnotify.Watcher, run.
func watchAndRun(ctx context.Context, targets watchTargets, debounce time.Duration, run func(ctx context.Context, reason string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	for _, dir := range targets.dirs() {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	log.Printf("Watching %d director(ies) for changes", len(targets.dirs()))

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets.relevant(evt) {
				continue
			}
			pending = filepath.Base(evt.Name)
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watch error: %v", err)
		case <-fire:
			fire = nil
			run(ctx, pending)
		}
	}
}
