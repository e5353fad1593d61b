package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry is one record kept in the history.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Query selects entries from a History. Zero fields match everything.
type Query struct {
	Module string
	// Level is the minimum level name, e.g. "warn".
	Level string
	// After skips entries with Seq <= After, for polling clients.
	After uint64
	// Limit keeps the newest Limit matches.
	Limit int
}

// History keeps the most recent log entries in a fixed-size ring. Each entry
// gets a sequence number that keeps growing after old entries are evicted.
type History struct {
	mu      sync.RWMutex
	entries []LogEntry
	seq     uint64
}

// NewHistory returns a history holding up to capacity entries.
func NewHistory(capacity int) *History {
	return &History{entries: make([]LogEntry, 0, max(capacity, 1))}
}

// Append stores e, evicting the oldest entry when full, and returns its
// sequence number.
func (h *History) Append(e LogEntry) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	e.Seq = h.seq
	if len(h.entries) < cap(h.entries) {
		h.entries = append(h.entries, e)
	} else {
		h.entries[int((h.seq-1)%uint64(cap(h.entries)))] = e
	}
	return e.Seq
}

// Len is the number of entries held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Query returns matching entries, oldest first.
func (h *History) Query(q Query) []LogEntry {
	minLevel := levelOr(q.Level, slog.LevelDebug)

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	// Index of the oldest entry once the ring has wrapped.
	start := 0
	if n == cap(h.entries) {
		start = int(h.seq % uint64(n))
	}

	var out []LogEntry
	for i := range n {
		e := h.entries[(start+i)%n]
		if e.Seq <= q.After || q.Module != "" && e.Module != q.Module {
			continue
		}
		if levelOr(e.Level, slog.LevelDebug) < minLevel {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// HistoryHandler is a slog.Handler that appends records to a History. The
// module attr becomes LogEntry.Module; other attrs are flattened with
// dot-joined group names.
type HistoryHandler struct {
	history *History
	level   slog.Leveler
	scope   scope
}

// NewHistoryHandler returns a handler writing to history.
func NewHistoryHandler(history *History, level slog.Leveler) *HistoryHandler {
	return &HistoryHandler{history: history, level: level}
}

func (h *HistoryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *HistoryHandler) Handle(_ context.Context, r slog.Record) error {
	e := LogEntry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Module:    "main",
		Message:   r.Message,
	}
	h.scope.walk(r, func(path []string, a slog.Attr) {
		if len(path) == 0 && a.Key == "module" {
			e.Module = a.Value.String()
			return
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]any)
		}
		key := a.Key
		if len(path) > 0 {
			key = strings.Join(path, ".") + "." + key
		}
		e.Attributes[key] = historyValue(a.Value)
	})
	h.history.Append(e)
	return nil
}

func historyValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func (h *HistoryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &HistoryHandler{history: h.history, level: h.level, scope: h.scope.withAttrs(attrs)}
}

func (h *HistoryHandler) WithGroup(name string) slog.Handler {
	return &HistoryHandler{history: h.history, level: h.level, scope: h.scope.withGroup(name)}
}
