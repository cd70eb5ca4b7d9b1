package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler wraps slog.TextHandler and prefixes each line with the
// level in ANSI color. The prefix is written ahead of the record so the
// text handler never quotes the escape codes.
type ColorTextHandler struct {
	slog.Handler
	w        io.Writer
	mu       *sync.Mutex
	showTime bool
}

// NewColorTextHandler creates a new ColorTextHandler. When showTime is false
// the time attribute is dropped, which keeps interactive output short.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	replace := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			switch {
			case a.Key == slog.LevelKey:
				return slog.Attr{}
			case a.Key == slog.TimeKey && !showTime:
				return slog.Attr{}
			}
		}
		if replace != nil {
			return replace(groups, a)
		}
		return a
	}
	return &ColorTextHandler{
		Handler:  slog.NewTextHandler(w, &o),
		w:        w,
		mu:       &sync.Mutex{},
		showTime: showTime,
	}
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "\033[36m" // Cyan
	case l < slog.LevelWarn:
		return "\033[32m" // Green
	case l < slog.LevelError:
		return "\033[33m" // Yellow
	default:
		return "\033[31m" // Red
	}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	prefix := levelColor(r.Level) + r.Level.String() + "\033[0m "

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, prefix); err != nil {
		return err
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{Handler: h.Handler.WithAttrs(attrs), w: h.w, mu: h.mu, showTime: h.showTime}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{Handler: h.Handler.WithGroup(name), w: h.w, mu: h.mu, showTime: h.showTime}
}
