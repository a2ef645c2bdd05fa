package gologger

import (
	"context"
	"errors"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

func TestResolveLoggers_Precedence(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	resolved := ResolveLoggers("payments", provider, loggerOnly)
	if got := resolved.Logger.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolved = ResolveLoggers("payments", nil, loggerOnly)
	if got := resolved.Logger.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolved.Provider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	resolved = ResolveLoggers("payments", nil, nil)
	if resolved.Logger == nil || resolved.JobLogger == nil || resolved.JobHook() == nil {
		t.Fatalf("expected nop fallback on every contract, got %#v", resolved)
	}
}

func TestResolveLoggers_BridgesGoJob(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	resolved := ResolveLoggers("payments", provider, nil)
	jobProvider, jobLogger := resolved.JobProvider, resolved.JobLogger
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("payments")
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestJobHook_LogsWorkerEvents(t *testing.T) {
	logger := &capturingLogger{id: "hook"}
	hook := NewJobHook(logger)
	msg := &core.JobExecutionMessage{JobID: "payments.overdue.sweep", IdempotencyKey: "sweep:1"}

	hook.OnSuccess(context.Background(), core.JobWorkerEvent{Message: msg, Attempt: 1, Duration: 40 * time.Millisecond})
	if logger.lastInfo.msg != "payments job completed" {
		t.Fatalf("expected completion log, got %q", logger.lastInfo.msg)
	}
	if fieldValue(logger.lastInfo.args, "job_id") != "payments.overdue.sweep" {
		t.Fatalf("expected job id field, got %#v", logger.lastInfo.args)
	}
	if fieldValue(logger.lastInfo.args, "duration_ms") != int64(40) {
		t.Fatalf("expected duration field, got %#v", logger.lastInfo.args)
	}

	hook.OnRetry(context.Background(), core.JobWorkerEvent{Message: msg, Attempt: 2, Delay: time.Second, Err: errors.New("deadlock")})
	if logger.lastWarn.msg != "payments job scheduled for retry" || fieldValue(logger.lastWarn.args, "delay_ms") != int64(1000) {
		t.Fatalf("unexpected retry log %#v", logger.lastWarn)
	}

	hook.OnFailure(context.Background(), core.JobWorkerEvent{Message: msg, Err: errors.New("not found")})
	if fieldValue(logger.lastError.args, "error") != "not found" {
		t.Fatalf("unexpected failure log %#v", logger.lastError)
	}

	NewJobHook(nil).OnStart(context.Background(), core.JobWorkerEvent{})
}

func fieldValue(args []any, key string) any {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1]
		}
	}
	return nil
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id        string
	lastInfo  infoCall
	lastWarn  infoCall
	lastError infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Warn(msg string, args ...any) {
	l.lastWarn = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) Error(msg string, args ...any) {
	l.lastError = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
