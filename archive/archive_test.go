package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"covreport/config"
)

func openTestStore(t *testing.T, retention int) *Store {
	t.Helper()
	cfg := config.ArchiveConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "archive", "runs.db"),
		RetentionRuns: retention,
		BusyTimeoutMS: 1000,
		Synchronous:   "off",
	}
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fp(v float64) *float64 { return &v }

// Purpose: Verify a recorded run loads back with sources and graded cells.
// Key aspects: Absent values round-trip as nil, cell order is preserved.
// Upstream: go test.
// Downstream: Record, Load.
func TestRecordAndLoadRun(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := store.Record(ctx, Run{
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
		Output:      "out/report.xlsx",
		Generation:  "legacy",
		Fingerprint: "abc123",
		Sources: []SourceRecord{
			{Area: "Nord", Path: "nord.csv", Fingerprint: "f1", Rows: 10, Samples: 8, Status: "ok"},
			{Area: "Sud", Path: "sud.csv", Status: "failed", Reason: "missing column channel"},
		},
		Measurements: []MeasurementRecord{
			{Area: "Nord", Technology: "L800", TariffClass: "DATI", Operator: "TIM", Value: fp(-72), Band: "Verde"},
			{Area: "Nord", Technology: "L800", TariffClass: "DATI", Operator: "VF", Band: "Grigio"},
		},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	run, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !run.StartedAt.Equal(started) || run.Output != "out/report.xlsx" {
		t.Fatalf("unexpected run header %+v", run)
	}
	if len(run.Sources) != 2 || run.Sources[1].Reason != "missing column channel" {
		t.Fatalf("unexpected sources %+v", run.Sources)
	}
	if len(run.Measurements) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(run.Measurements))
	}
	if run.Measurements[0].Value == nil || *run.Measurements[0].Value != -72 {
		t.Fatalf("expected TIM value -72, got %+v", run.Measurements[0])
	}
	if run.Measurements[1].Value != nil || run.Measurements[1].Band != "Grigio" {
		t.Fatalf("expected absent VF cell, got %+v", run.Measurements[1])
	}

	last, ok, err := store.LastWithFingerprint(ctx, "abc123")
	if err != nil || !ok || last.ID != id {
		t.Fatalf("expected fingerprint hit on run %d, got %+v ok=%v err=%v", id, last, ok, err)
	}
	if _, ok, err := store.LastWithFingerprint(ctx, "nope"); err != nil || ok {
		t.Fatalf("expected fingerprint miss, got ok=%v err=%v", ok, err)
	}
}

// Purpose: Verify retention keeps only the newest runs.
// Key aspects: Older runs and their cells are pruned inside the insert tx.
// Upstream: go test.
// Downstream: Record, Recent.
func TestRecordPrunesOldRuns(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.Record(ctx, Run{
			Output:       "report.xlsx",
			Generation:   "5g",
			Measurements: []MeasurementRecord{{Area: "A", Technology: "NR700-152600", Operator: "TIM", Band: "Grigio"}},
		})
		if err != nil {
			t.Fatalf("Record() #%d error: %v", i, err)
		}
		ids = append(ids, id)
	}
	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Fatalf("expected newest two runs, got %+v", recent)
	}
	if _, err := store.Load(ctx, ids[0]); err == nil {
		t.Fatalf("expected pruned run to be gone")
	}
	var orphans int
	if err := store.db.QueryRow(`select count(*) from run_measurements where run_id = ?`, ids[0]).Scan(&orphans); err != nil {
		t.Fatalf("count orphans: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected cascade delete of measurements, found %d", orphans)
	}
}

func TestOpenQuarantinesCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	if err := os.WriteFile(path, []byte("not a sqlite db, just some bytes that are long enough to look like a header"), 0o644); err != nil {
		t.Fatalf("write corrupt db: %v", err)
	}
	if err := os.WriteFile(path+"-wal", []byte("sidecar"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	store, err := Open(config.ArchiveConfig{DBPath: path, BusyTimeoutMS: 1000})
	if err != nil {
		t.Fatalf("expected Open() to recover, got %v", err)
	}
	defer store.Close()

	pre := store.Preflight()
	if pre.Healthy || !pre.Quarantined || pre.Err == nil {
		t.Fatalf("expected quarantine, got %+v", pre)
	}
	if !strings.Contains(pre.QuarantinePath, ".bad-") {
		t.Fatalf("unexpected quarantine path %s", pre.QuarantinePath)
	}
	if _, err := os.Stat(pre.QuarantinePath); err != nil {
		t.Fatalf("expected quarantined copy: %v", err)
	}
	if _, err := store.Record(context.Background(), Run{Output: "r.xlsx", Generation: "legacy"}); err != nil {
		t.Fatalf("expected fresh archive to accept runs: %v", err)
	}
}

func TestOpenExistingHealthyDatabase(t *testing.T) {
	store := openTestStore(t, 0)
	if _, err := store.Record(context.Background(), Run{Output: "r.xlsx"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	path := store.cfg.DBPath
	_ = store.Close()

	reopened, err := Open(config.ArchiveConfig{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if !reopened.Preflight().Healthy {
		t.Fatalf("expected healthy preflight, got %+v", reopened.Preflight())
	}
	runs, err := reopened.Recent(context.Background(), 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected the earlier run, got %+v err=%v", runs, err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(config.ArchiveConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
