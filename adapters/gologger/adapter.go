package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

// Loggers is one resolved logger seen through both the go-logger and the
// go-job contracts, so the service and the job worker write to one sink.
type Loggers struct {
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// ResolveLoggers picks provider, then logger, then a nop logger.
func ResolveLoggers(name string, provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return Loggers{
		Provider:    resolvedProvider,
		Logger:      resolvedLogger,
		JobProvider: job.GoLoggerProvider(resolvedProvider),
		JobLogger:   job.GoLogger(resolvedLogger),
	}
}

// JobHook logs worker events through the resolved logger.
func (l Loggers) JobHook() *JobHook {
	return NewJobHook(l.Logger)
}

// JobHook logs payments worker events. Retries and failures are logged at
// warn and error level with the job id and attempt.
type JobHook struct {
	logger glog.Logger
}

func NewJobHook(logger glog.Logger) *JobHook {
	return &JobHook{logger: glog.Ensure(logger)}
}

func (h *JobHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Debug("payments job started", jobEventFields(event)...)
}

func (h *JobHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Info("payments job completed", jobEventFields(event)...)
}

func (h *JobHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Error("payments job failed", jobEventFields(event)...)
}

func (h *JobHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Warn("payments job scheduled for retry", jobEventFields(event)...)
}

func (h *JobHook) log(ctx context.Context) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	if ctx == nil {
		return h.logger
	}
	return h.logger.WithContext(ctx)
}

func jobEventFields(event core.JobWorkerEvent) []any {
	fields := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var _ core.JobWorkerHook = (*JobHook)(nil)
