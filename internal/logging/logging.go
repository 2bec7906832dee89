// Package logging builds the process logger and keeps a window of recent
// entries for the state endpoint.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRingSize is how many entries RingHook keeps when none is given.
const DefaultRingSize = 200

// New returns a text logger with full timestamps at the given level.
// An unknown level falls back to info.
func New(out io.Writer, level string) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// RingHook retains the last N formatted log lines.
type RingHook struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRingHook creates a hook holding up to size lines.
func NewRingHook(size int) *RingHook {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingHook{lines: make([]string, size)}
}

// Levels implements logrus.Hook.
func (h *RingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *RingHook) Fire(e *logrus.Entry) error {
	line := format(e)

	h.mu.Lock()
	h.lines[h.next] = line
	h.next = (h.next + 1) % len(h.lines)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
	return nil
}

// Lines returns the retained lines, oldest first.
func (h *RingHook) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]string(nil), h.lines[:h.next]...)
	}
	out := make([]string, 0, len(h.lines))
	out = append(out, h.lines[h.next:]...)
	out = append(out, h.lines[:h.next]...)
	return out
}

func format(e *logrus.Entry) string {
	var b strings.Builder
	b.WriteString(e.Time.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	return b.String()
}
