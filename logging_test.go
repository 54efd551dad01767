package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"covreport/config"
)

func TestLogFileNameForDate(t *testing.T) {
	when := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if got := logFileNameForDate(when); got != "22-Jan-2026.log" {
		t.Fatalf("expected log filename to be 22-Jan-2026.log, got %q", got)
	}
}

func TestParseLogFileDate(t *testing.T) {
	parsed, ok := parseLogFileDate("22-Jan-2026.log")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if parsed.Year() != 2026 || parsed.Month() != time.January || parsed.Day() != 22 {
		t.Fatalf("unexpected parsed date: %s", parsed.Format(time.RFC3339))
	}
	if _, ok := parseLogFileDate("notes.txt"); ok {
		t.Fatalf("expected non-log file to be rejected")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"20-Jan-2026.log", "21-Jan-2026.log", "22-Jan-2026.log", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := cleanupOldLogs(dir, now, 2); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "20-Jan-2026.log")); !os.IsNotExist(err) {
		t.Fatalf("expected 20-Jan-2026.log to be removed, stat err=%v", err)
	}
	for _, name := range []string{"21-Jan-2026.log", "22-Jan-2026.log", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestDailyFileSinkRotatesByDay(t *testing.T) {
	dir := t.TempDir()
	sink, err := newDailyFileSink(dir, 7)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	defer sink.Close()

	day1 := time.Date(2026, time.January, 22, 23, 59, 0, 0, time.UTC)
	sink.WriteLine("first", day1)
	if got := filepath.Base(sink.path()); got != "22-Jan-2026.log" {
		t.Fatalf("unexpected first log file %s", got)
	}
	sink.WriteLine("second", day1.Add(2*time.Minute))
	if got := filepath.Base(sink.path()); got != "23-Jan-2026.log" {
		t.Fatalf("unexpected rotated log file %s", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "22-Jan-2026.log"))
	if err != nil {
		t.Fatalf("read first day: %v", err)
	}
	if !strings.Contains(string(data), "2026/01/22 23:59:00 first") || strings.Contains(string(data), "second") {
		t.Fatalf("unexpected first day content %q", data)
	}
}

func TestLogFanoutSplitsLinesAcrossSinks(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	fanout, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: dir, RetentionDays: 3}, &console)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	fanout.SetConsoleSink(&console, false)
	logger := log.New(fanout, "", 0)

	logger.Print("Report written to out.xlsx")
	if _, err := fanout.Write([]byte("partial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.Contains(console.String(), "partial") {
		t.Fatalf("expected partial line to stay buffered, got %q", console.String())
	}
	if _, err := fanout.Write([]byte(" line\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	fanout.WriteFileOnlyLine("config dump", time.Now())
	if err := fanout.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := console.String(); got != "Report written to out.xlsx\npartial line\n" {
		t.Fatalf("unexpected console output %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v err=%v", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"Report written to out.xlsx", "partial line", "config dump"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %q in log file, got %q", want, data)
		}
	}
	if strings.Contains(console.String(), "config dump") {
		t.Fatalf("file-only line leaked to console")
	}
}

func TestLogFanoutTalliesWarningsPerRun(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	fanout, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: dir, RetentionDays: 3}, &console)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	defer fanout.Close()
	logger := log.New(fanout, "", 0)

	if fanout.FilePath() != "" {
		t.Fatalf("expected no log file before the first line")
	}
	logger.Print("Warning: skipping source Nord (nord.csv): survey: no header row")
	logger.Print("Report written to out.xlsx")
	logger.Print("Warning: area Sud: 2 channel(s) not in the plan: 1, 2")
	if got := fanout.Warnings(); got != 2 {
		t.Fatalf("expected 2 warnings, got %d", got)
	}
	if prev := fanout.ResetWarnings(); prev != 2 || fanout.Warnings() != 0 {
		t.Fatalf("expected reset to return 2 and clear, got %d / %d", prev, fanout.Warnings())
	}
	logger.Print("no warning here")
	if fanout.Warnings() != 0 {
		t.Fatalf("plain line counted as warning")
	}
	if got := filepath.Dir(fanout.FilePath()); got != dir {
		t.Fatalf("expected log file under %s, got %q", dir, fanout.FilePath())
	}
}
