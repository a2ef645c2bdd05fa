package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.LevelDebug - 4

// slogLogger renders glog calls through a JSON slog handler.
type slogLogger struct {
	base *slog.Logger
	ctx  context.Context
}

func newLogger(w io.Writer, debug bool) *slogLogger {
	level := slog.LevelInfo
	if debug {
		level = levelTrace
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &slogLogger{base: slog.New(handler), ctx: context.Background()}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.base.Log(l.ctx, levelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.base.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.base.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.base.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.base.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.base.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{base: l.base, ctx: ctx}
}

func (l *slogLogger) WithFields(fields map[string]any) glog.Logger {
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return &slogLogger{base: l.base.With(args...), ctx: l.ctx}
}

// GetLogger scopes the logger by component name.
func (l *slogLogger) GetLogger(name string) glog.Logger {
	return &slogLogger{base: l.base.With("component", name), ctx: l.ctx}
}

var (
	_ glog.Logger         = (*slogLogger)(nil)
	_ glog.FieldsLogger   = (*slogLogger)(nil)
	_ glog.LoggerProvider = (*slogLogger)(nil)
)
