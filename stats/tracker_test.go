package stats

import (
	"strings"
	"testing"
)

func TestTrackerCountsPerAreaAndTotal(t *testing.T) {
	tr := NewTracker()
	tr.Add("Nord", Rows, 1200)
	tr.Add("Nord", Samples, 1100)
	tr.Add("Sud", Rows, 30)
	tr.Add("Sud", Unclassified, 2)
	tr.Add("", Rows, 5)
	tr.Add("Sud", Rows, 0)
	tr.SourceDone(2048)
	tr.SourceDone(0)
	tr.SourceFailed()
	tr.Duplicate()

	if got := tr.Get("Nord", Rows); got != 1200 {
		t.Fatalf("expected Nord rows=1200, got %d", got)
	}
	if got := tr.Total(Rows); got != 1230 {
		t.Fatalf("expected total rows=1230, got %d", got)
	}
	if got := tr.Areas(); len(got) != 2 || got[0] != "Nord" || got[1] != "Sud" {
		t.Fatalf("unexpected areas %v", got)
	}
	if tr.Sources() != 2 || tr.Failed() != 1 || tr.Duplicates() != 1 {
		t.Fatalf("unexpected source counts %d/%d/%d", tr.Sources(), tr.Failed(), tr.Duplicates())
	}

	lines := tr.SnapshotLines()
	if len(lines) != 3 {
		t.Fatalf("expected run line plus two area lines, got %v", lines)
	}
	if !strings.Contains(lines[0], "1,230 rows") || !strings.Contains(lines[0], "2.0 kB read") {
		t.Fatalf("unexpected run line %q", lines[0])
	}
	if lines[1] != "Area Nord: rows=1,200, samples=1,100" {
		t.Fatalf("unexpected Nord line %q", lines[1])
	}
	if lines[2] != "Area Sud: rows=30, unclassified=2" {
		t.Fatalf("unexpected Sud line %q", lines[2])
	}
	if got := tr.ProgressLine(1, 3); !strings.HasPrefix(got, "sources 1/3 | rows 1,230 | samples 1,100") {
		t.Fatalf("unexpected progress line %q", got)
	}

	tr.Reset()
	if tr.Total(Rows) != 0 || len(tr.Areas()) != 0 || tr.Sources() != 0 {
		t.Fatalf("expected reset tracker to be empty")
	}
}
