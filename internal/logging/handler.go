package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// Handler is a compact slog handler for operating a live quiz from a
// terminal: HH:MM:SS timestamps and color-coded levels.
type Handler struct {
	mu    *sync.Mutex
	l     *log.Logger
	level slog.Level
	attrs []slog.Attr
}

func NewHandler(out io.Writer, level slog.Level) *Handler {
	return &Handler{
		mu:    &sync.Mutex{},
		l:     log.New(out, "", 0),
		level: level,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch r.Level {
	case slog.LevelDebug:
		level = color.BlueString(level)
	case slog.LevelInfo:
		level = color.GreenString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	attrsStr := ""
	for _, a := range h.attrs {
		attrsStr += color.CyanString(a.Key) + "=" + fmt.Sprint(a.Value.Any()) + " "
	}
	r.Attrs(func(a slog.Attr) bool {
		attrsStr += color.CyanString(a.Key) + "=" + fmt.Sprint(a.Value.Any()) + " "
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.l.Println(
		r.Time.Format("15:04:05"),
		level,
		r.Message,
		attrsStr,
	)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *Handler) WithGroup(_ string) slog.Handler {
	// Groups are not rendered; attribute keys stay flat.
	return h
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
