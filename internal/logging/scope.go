package logging

import (
	"log/slog"
	"slices"
)

// scope holds the attrs and groups a handler has accumulated through
// WithAttrs and WithGroup. Attrs keep the group path that was open when they
// were added.
type scope struct {
	attrs  []scopedAttr
	groups []string
}

type scopedAttr struct {
	path []string
	attr slog.Attr
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	next := scope{attrs: slices.Clip(s.attrs), groups: s.groups}
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{path: s.groups, attr: a})
	}
	return next
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	return scope{attrs: s.attrs, groups: append(slices.Clip(s.groups), name)}
}

// walk calls fn for every leaf attr of the scope followed by those of r.
// Group attrs are expanded; empty attrs are skipped.
func (s scope) walk(r slog.Record, fn func(path []string, a slog.Attr)) {
	for _, sa := range s.attrs {
		walkAttr(sa.path, sa.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		walkAttr(s.groups, a, fn)
		return true
	})
}

func walkAttr(path []string, a slog.Attr, fn func([]string, slog.Attr)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		fn(path, a)
		return
	}
	inner := path
	if a.Key != "" {
		inner = append(slices.Clip(path), a.Key)
	}
	for _, ga := range a.Value.Group() {
		walkAttr(inner, ga, fn)
	}
}

// levelName is the lowercase name used in history entries and the API.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
