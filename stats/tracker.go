// Package stats tracks per-area row counters for run summaries and the
// progress line.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counter names used by the report runner.
const (
	Rows         = "rows"
	Samples      = "samples"
	Skipped      = "skipped"
	Fallback     = "fallback"
	Unclassified = "unclassified"
	Extra        = "extra"
)

// Tracker tracks row statistics by area
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so the progress reader never blocks the runner
	areaCounts  sync.Map // "area|counter" -> *atomic.Uint64
	totals      sync.Map // counter -> *atomic.Uint64
	areas       sync.Map // area -> struct{}
	start       atomic.Int64
	sources     atomic.Uint64
	failed      atomic.Uint64
	duplicates  atomic.Uint64
	bytesParsed atomic.Uint64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Add increases counter for area by n.
func (t *Tracker) Add(area, counter string, n int) {
	if n <= 0 {
		return
	}
	area = strings.TrimSpace(area)
	counter = strings.TrimSpace(counter)
	if area == "" || counter == "" {
		return
	}
	t.areas.LoadOrStore(area, struct{}{})
	addCounter(&t.areaCounts, area+"|"+counter, uint64(n))
	addCounter(&t.totals, counter, uint64(n))
}

// SourceDone records a processed source and its size in bytes.
func (t *Tracker) SourceDone(bytes int) {
	t.sources.Add(1)
	if bytes > 0 {
		t.bytesParsed.Add(uint64(bytes))
	}
}

// SourceFailed records a source skipped because of an error.
func (t *Tracker) SourceFailed() {
	t.failed.Add(1)
}

// Duplicate records a source skipped because its content was already processed.
func (t *Tracker) Duplicate() {
	t.duplicates.Add(1)
}

// Get returns one area counter.
func (t *Tracker) Get(area, counter string) uint64 {
	return loadCounter(&t.areaCounts, area+"|"+counter)
}

// Total returns a counter summed across areas.
func (t *Tracker) Total(counter string) uint64 {
	return loadCounter(&t.totals, counter)
}

// Sources, Failed and Duplicates return run-level source counts.
func (t *Tracker) Sources() uint64    { return t.sources.Load() }
func (t *Tracker) Failed() uint64     { return t.failed.Load() }
func (t *Tracker) Duplicates() uint64 { return t.duplicates.Load() }

// Areas returns the areas seen so far, sorted.
func (t *Tracker) Areas() []string {
	var out []string
	t.areas.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	for _, m := range []*sync.Map{&t.areaCounts, &t.totals, &t.areas} {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}
	t.sources.Store(0)
	t.failed.Store(0)
	t.duplicates.Store(0)
	t.bytesParsed.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// ProgressLine is the one-line status shown while a run is in flight.
func (t *Tracker) ProgressLine(done, total int) string {
	return fmt.Sprintf("sources %d/%d | rows %s | samples %s | %s read",
		done, total,
		humanize.Comma(int64(t.Total(Rows))),
		humanize.Comma(int64(t.Total(Samples))),
		humanize.Bytes(t.bytesParsed.Load()))
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, len(t.Areas())+1)
	lines = append(lines, fmt.Sprintf("Run: %s sources (%s failed, %s duplicate), %s rows, %s samples, %s read in %s",
		humanize.Comma(int64(t.Sources())),
		humanize.Comma(int64(t.Failed())),
		humanize.Comma(int64(t.Duplicates())),
		humanize.Comma(int64(t.Total(Rows))),
		humanize.Comma(int64(t.Total(Samples))),
		humanize.Bytes(t.bytesParsed.Load()),
		t.GetUptime().Round(time.Millisecond)))
	for _, area := range t.Areas() {
		lines = append(lines, formatArea(t, area))
	}
	return lines
}

func formatArea(t *Tracker, area string) string {
	var builder strings.Builder
	builder.WriteString("Area ")
	builder.WriteString(area)
	builder.WriteString(": ")
	first := true
	for _, counter := range []string{Rows, Samples, Skipped, Fallback, Unclassified, Extra} {
		v := t.Get(area, counter)
		if v == 0 {
			continue
		}
		if !first {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", counter, humanize.Comma(int64(v)))
		first = false
	}
	if first {
		builder.WriteString("(none)")
	}
	return builder.String()
}

func loadCounter(m *sync.Map, key string) uint64 {
	if value, ok := m.Load(key); ok {
		return value.(*atomic.Uint64).Load()
	}
	return 0
}

func addCounter(m *sync.Map, key string, n uint64) {
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(n)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(n)
		return
	}
	counter.Add(n)
}
