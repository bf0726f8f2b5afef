// Package log wires the slog streams used by a screening session: a plain
// console stream, an info-level session log file and a debug-level log file
// carrying full subprocess diagnostics.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds attributes stored in the context to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

// ContextAttrs returns a context carrying attrs in addition to any already
// stored ones.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// Fanout dispatches each record to every handler enabled for its level.
type Fanout struct {
	handlers []slog.Handler
}

func NewFanout(handlers ...slog.Handler) Fanout {
	return Fanout{handlers: handlers}
}

func (f Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f Fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return Fanout{handlers: handlers}
}

func (f Fanout) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return Fanout{handlers: handlers}
}

var warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

// lineHandler writes bare messages, one per line. Multi-line messages such
// as histograms or table blocks pass through untouched, which a key=value
// handler would mangle. Styled handlers emphasize warnings, for the console
// only so log files stay free of escape codes.
type lineHandler struct {
	w      io.Writer
	level  slog.Level
	styled bool
}

func NewLineHandler(w io.Writer, level slog.Level) slog.Handler {
	return lineHandler{w: w, level: level}
}

func NewConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return lineHandler{w: w, level: level, styled: true}
}

func (h lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h lineHandler) Handle(_ context.Context, r slog.Record) error {
	msg := strings.TrimRight(r.Message, "\n")
	if r.Level >= slog.LevelWarn {
		if !strings.HasPrefix(msg, "Warning") {
			msg = "Warning: " + msg
		}
		if h.styled {
			msg = warnStyle.Render(msg)
		}
	}
	_, err := fmt.Fprintln(h.w, msg)
	return err
}

func (h lineHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h lineHandler) WithGroup(string) slog.Handler { return h }

// Setup configures the default logger with three sinks: console (stdout),
// dir/screen.log at info and dir/screen.debug.log at debug. The returned
// close function releases both files.
func Setup(dir string, verbose bool) (func() error, error) {
	infoFile, err := os.OpenFile(filepath.Join(dir, "screen.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening info log: %w", err)
	}
	debugFile, err := os.OpenFile(filepath.Join(dir, "screen.debug.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = infoFile.Close()
		return nil, fmt.Errorf("opening debug log: %w", err)
	}

	consoleLevel := slog.LevelInfo
	if verbose {
		consoleLevel = slog.LevelDebug
	}

	fanout := NewFanout(
		NewConsoleHandler(os.Stdout, consoleLevel),
		NewLineHandler(infoFile, slog.LevelInfo),
		slog.NewTextHandler(debugFile, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}),
	)
	slog.SetDefault(slog.New(NewContextHandler(fanout)))

	closeFunc := func() error {
		err1 := infoFile.Close()
		err2 := debugFile.Close()
		if err1 != nil {
			return err1
		}
		return err2
	}
	return closeFunc, nil
}
