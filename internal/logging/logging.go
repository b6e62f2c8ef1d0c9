// Package logging sets up the process-wide slog logger.
//
// Records below ERROR go to one writer (stdout), ERROR and above to another
// (stderr). An optional log file receives a copy of everything.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// splitHandler sends records to info or errs depending on their level.
type splitHandler struct {
	min  slog.Level
	info slog.Handler
	errs slog.Handler
}

// NewHandler returns a text handler that writes records at or above min to
// info, except ERROR and above which go to errs.
func NewHandler(info, errs io.Writer, min slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: min}
	return &splitHandler{
		min:  min,
		info: slog.NewTextHandler(info, opts),
		errs: slog.NewTextHandler(errs, opts),
	}
}

func (h *splitHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.errs.Handle(ctx, r)
	}
	return h.info.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{min: h.min, info: h.info.WithAttrs(attrs), errs: h.errs.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{min: h.min, info: h.info.WithGroup(name), errs: h.errs.WithGroup(name)}
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel parses debug, info, warn or error, ignoring case. The empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return slog.LevelInfo, nil
	}
	level, ok := levels[name]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Setup installs the default logger. If path is non-empty the file at path
// is opened for appending and the returned func closes it.
func Setup(path string, level slog.Level) (func(), error) {
	info := io.Writer(os.Stdout)
	errs := io.Writer(os.Stderr)
	closeFn := func() {}

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		info = io.MultiWriter(os.Stdout, f)
		errs = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(NewHandler(info, errs, level)))
	return closeFn, nil
}
