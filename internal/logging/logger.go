package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const historySize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex          sync.Mutex
	moduleLoggers  = make(map[string]*slog.Logger)
	moduleLevels   = make(map[string]*slog.LevelVar)
	globalConfig   Config
	globalLevelVar = &slog.LevelVar{}
	history        = NewHistory(historySize)

	// sink is the output chain every module logger writes through. It is
	// swapped by Initialize; module handlers pick up the new chain on their
	// next record.
	sink atomic.Pointer[sinkState]
)

type sinkState struct {
	gen     uint64
	handler slog.Handler
}

func init() {
	sink.Store(&sinkState{handler: createHandler("text")})
}

// Initialize sets levels and output format. Loggers handed out earlier keep
// working and follow the new configuration.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	globalLevelVar.Set(levelOr(config.Level, slog.LevelInfo))
	for module, levelVar := range moduleLevels {
		levelVar.Set(moduleLevel(module))
	}

	prev := sink.Load()
	sink.Store(&sinkState{gen: prev.gen + 1, handler: createHandler(config.Format)})

	slog.SetDefault(slog.New(newModuleHandler(globalLevelVar)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.Lock()
	defer mutex.Unlock()

	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))
	logger := slog.New(newModuleHandler(levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevels[module] = levelVar
	return logger
}

// SetModuleLevel changes one module's level at runtime.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	moduleLevels[module].Set(*parsed)
	return true
}

// GetHistory returns the in-memory history of recent log entries.
func GetHistory() *History {
	return history
}

// moduleLevel resolves a module's level from the current config. Caller
// holds mutex.
func moduleLevel(module string) slog.Level {
	level := levelOr(globalConfig.Level, slog.LevelInfo)
	if s, ok := globalConfig.Modules[module]; ok {
		level = levelOr(s, level)
	}
	return level
}

// moduleHandler gates records on a per-module level and forwards them to
// the current sink, replaying the attrs and groups added with With.
type moduleHandler struct {
	level   slog.Leveler
	derive  []func(slog.Handler) slog.Handler
	derived atomic.Pointer[sinkState]
}

func newModuleHandler(level slog.Leveler) *moduleHandler {
	return &moduleHandler{level: level}
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *moduleHandler) target() slog.Handler {
	current := sink.Load()
	if d := h.derived.Load(); d != nil && d.gen == current.gen {
		return d.handler
	}
	handler := current.handler
	for _, fn := range h.derive {
		handler = fn(handler)
	}
	h.derived.Store(&sinkState{gen: current.gen, handler: handler})
	return handler
}

func (h *moduleHandler) with(fn func(slog.Handler) slog.Handler) *moduleHandler {
	derive := make([]func(slog.Handler) slog.Handler, len(h.derive), len(h.derive)+1)
	copy(derive, h.derive)
	return &moduleHandler{level: h.level, derive: append(derive, fn)}
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

// createHandler builds the output chain: stdout, journal when available,
// and the history buffer. Level filtering happens in moduleHandler.
func createHandler(format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(slog.LevelDebug))
	}
	handlers = append(handlers, NewHistoryHandler(history, slog.LevelDebug))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
