package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()

	writeConfigFile(t, dir, "app.yaml", `report:
  output: "out/report.xlsx"
  generation: "5g"
logging:
  enabled: true
`)
	writeConfigFile(t, dir, "grading.yaml", `report:
  precision: 1
grading:
  dead_zone: 2.5
  thresholds:
    4G:
      green_min: -100
      yellow_min: -110
`)
	writeConfigFile(t, dir, "sources.yml", `sources:
  - path: "surveys/Piano 1.xlsx"
  - area: "Tetto"
    path: "surveys/roof.csv"
    sheet: "Dati"
`)
	writeConfigFile(t, dir, "notes.txt", "not: yaml: at all")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := filepath.Clean(cfg.LoadedFrom); got != filepath.Clean(dir) {
		t.Fatalf("expected LoadedFrom=%s, got %s", dir, got)
	}
	if cfg.Report.Output != "out/report.xlsx" || cfg.Report.Generation != "5g" {
		t.Fatalf("expected report settings from app.yaml, got %+v", cfg.Report)
	}
	if cfg.Report.Precision != 1 {
		t.Fatalf("expected precision=1 merged from grading.yaml, got %d", cfg.Report.Precision)
	}
	if cfg.Report.SummarySheet != "Summary" {
		t.Fatalf("expected default summary sheet to survive merge, got %q", cfg.Report.SummarySheet)
	}
	if !cfg.Logging.Enabled || cfg.Logging.RetentionDays != 7 {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Grading.DeadZone != 2.5 || cfg.Grading.Thresholds["4G"].GreenMin != -100 {
		t.Fatalf("unexpected grading config %+v", cfg.Grading)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Area != "Piano 1" {
		t.Fatalf("expected area derived from file name, got %q", cfg.Sources[0].Area)
	}
	if cfg.Sources[1].Area != "Tetto" || cfg.Sources[1].Sheet != "Dati" {
		t.Fatalf("unexpected second source %+v", cfg.Sources[1])
	}
}

func TestLoadPreservesExplicitZero(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "report.yaml", "report:\n  precision: 0\n  skip_duplicates: false\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Report.Precision != 0 {
		t.Fatalf("expected explicit precision=0, got %d", cfg.Report.Precision)
	}
	if cfg.Report.SkipDuplicates {
		t.Fatalf("expected skip_duplicates=false")
	}
}

func TestLoadRejectsSingleFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	writeConfigFile(t, dir, "runtime.yaml", "report:\n  precision: 2\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load() to reject non-directory config path")
	}
}

func TestLoadRejectsUnknownKeysAndBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "report:\n  outptu: x\n",
		"precision":    "report:\n  precision: 9\n",
		"dead zone":    "grading:\n  dead_zone: -1\n",
		"thresholds":   "grading:\n  thresholds:\n    2G: {green_min: -95, yellow_min: -80}\n",
		"synchronous":  "archive:\n  synchronous: sometimes\n",
		"empty source": "sources:\n  - area: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfigFile(t, dir, "bad.yaml", body)
			if _, err := Load(dir); err == nil {
				t.Fatalf("expected Load() to fail")
			}
		})
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "empty.yaml", "")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Report.Precision != 2 || len(cfg.Report.Operators) != 4 {
		t.Fatalf("expected defaults, got %+v", cfg.Report)
	}
}

func TestResolveDir(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolveDir(""); got != DefaultDir {
		t.Fatalf("expected default dir, got %q", got)
	}
	t.Setenv(EnvConfigPath, "/etc/covreport")
	if got := ResolveDir(""); got != "/etc/covreport" {
		t.Fatalf("expected env dir, got %q", got)
	}
	if got := ResolveDir("cfg"); got != "cfg" {
		t.Fatalf("expected flag to win, got %q", got)
	}
}

func TestShippedSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "data", "config"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Report.Generation != "legacy" || len(cfg.Grading.Thresholds) != 4 {
		t.Fatalf("unexpected sample config %+v", cfg.Report)
	}
	if len(cfg.Sources) != 0 {
		t.Fatalf("expected no sources in the sample, got %+v", cfg.Sources)
	}
}
