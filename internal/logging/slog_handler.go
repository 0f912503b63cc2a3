package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler adapts Logger to the slog.Handler interface so kernel- and
// service-level code can use ordinary structured log/slog call sites
// (actor id, from/to, payload type, ...) while this package's formatter
// stays the single sink underneath, exactly as the teacher's kernel.go
// calls slog.Info/Warn/Error over whatever handler main() installed.
type Handler struct {
	logger *Logger
	attrs  []slog.Attr
	group  string
}

// NewHandler wraps logger as a slog.Handler.
func NewHandler(logger *Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToLevel(level) >= h.logger.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	h.logger.Log(slogToLevel(r.Level), r.Message, strings.TrimSpace(b.String()))
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{logger: h.logger, group: h.group}
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	next := &Handler{logger: h.logger, attrs: h.attrs, group: name}
	return next
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, "%s=%v ", key, a.Value.Any())
}

func slogToLevel(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return TRACE
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}
