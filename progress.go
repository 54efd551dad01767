package main

import (
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	ansiClearLine = "\r\x1b[2K"
	defaultWidth  = 100
)

// statusLine keeps a single redrawn status line at the bottom of an
// interactive console while log lines scroll above it.
type statusLine struct {
	mu     sync.Mutex
	out    io.Writer
	fd     int
	status string
	drawn  bool
}

// Purpose: Report whether stdout is a TTY for progress rendering.
// Key aspects: Uses term.IsTerminal on the stdout fd.
// Upstream: main progress selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newStatusLine(out *os.File) *statusLine {
	return &statusLine{out: out, fd: int(out.Fd())}
}

// Set replaces the status text and redraws it.
func (s *statusLine) Set(text string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = s.fit(text)
	s.drawLocked()
}

// Clear removes the status line; later log lines print normally.
func (s *statusLine) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawn {
		_, _ = io.WriteString(s.out, ansiClearLine)
	}
	s.status = ""
	s.drawn = false
}

// Write prints log output above the status line. It is installed as the
// console sink of the log fanout, which only hands it complete lines.
func (s *statusLine) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawn {
		_, _ = io.WriteString(s.out, ansiClearLine)
		s.drawn = false
	}
	if _, err := s.out.Write(p); err != nil {
		return 0, err
	}
	s.drawLocked()
	return len(p), nil
}

func (s *statusLine) drawLocked() {
	if s.status == "" {
		return
	}
	_, _ = io.WriteString(s.out, ansiClearLine+s.status)
	s.drawn = true
}

func (s *statusLine) fit(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	width := defaultWidth
	if w, _, err := term.GetSize(s.fd); err == nil && w > 0 {
		width = w
	}
	if r := []rune(text); len(r) >= width {
		return string(r[:width-1])
	}
	return text
}
