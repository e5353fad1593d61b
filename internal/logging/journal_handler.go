package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry; filter with journalctl -t.
const SyslogIdentifier = "framelink"

// journalSend is replaced in tests.
var journalSend = journal.Send

// JournalHandler sends records to the systemd journal. Attr keys become
// upper-case fields with groups joined by underscores, so a session_id attr
// is queryable as SESSION_ID=....
type JournalHandler struct {
	level slog.Leveler
	scope scope
	// warned keeps a dead journal socket from flooding stderr.
	warned *atomic.Bool
}

// NewJournalHandler returns a journal handler for records at or above level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, warned: &atomic.Bool{}}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	h.scope.walk(r, func(path []string, a slog.Attr) {
		fields[journalField(path, a.Key)] = journalValue(a.Value)
	})

	if err := journalSend(r.Message, journalPriority(r.Level), fields); err != nil {
		if h.warned.CompareAndSwap(false, true) {
			fmt.Fprintf(os.Stderr, "journal send failed: %v\n", err)
		}
		return err
	}
	h.warned.Store(false)
	return nil
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{level: h.level, scope: h.scope.withAttrs(attrs), warned: h.warned}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	return &JournalHandler{level: h.level, scope: h.scope.withGroup(name), warned: h.warned}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField builds a valid field name: upper case letters, digits and
// underscores, not starting with an underscore.
func journalField(path []string, key string) string {
	name := strings.Join(append(path[:len(path):len(path)], key), "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.TrimLeft(name, "_")
	if name == "" {
		return "ATTR"
	}
	return name
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

// IsJournalAvailable reports whether the journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
