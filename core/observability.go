package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// metricTagKeys are the operation fields promoted to metric tags. Ids stay
// in logs only.
var metricTagKeys = []string{"stage", "target_status", "policy_source", "next_stage"}

// operation tracks one public Service call. Fields gathered while the call
// runs end up on the closing log line.
type operation struct {
	svc       *Service
	ctx       context.Context
	name      string
	startedAt time.Time
	fields    map[string]any
}

func (s *Service) beginOperation(ctx context.Context, name string, fields map[string]any) *operation {
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	if name == "" {
		name = "unknown"
	}
	op := &operation{
		svc:       s,
		ctx:       ctx,
		name:      name,
		startedAt: time.Now(),
		fields:    make(map[string]any, len(fields)+6),
	}
	for key, value := range fields {
		op.fields[key] = value
	}
	return op
}

func (op *operation) set(key string, value any) {
	op.fields[key] = value
}

// end records the call. Conflicts and validation failures reject the
// request and log at warn; other errors log at error.
func (op *operation) end(err error) {
	if op == nil || op.svc == nil {
		return
	}
	elapsed := time.Since(op.startedAt)
	status, outcome, level := "success", "succeeded", "info"
	switch {
	case err == nil:
	case IsConflict(err) || IsValidation(err):
		status, outcome, level = "failure", "rejected", "warn"
	default:
		status, outcome, level = "failure", "failed", "error"
	}

	op.fields["event_type"] = op.name
	op.fields["status"] = status
	op.fields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		op.fields["error"] = err.Error()
		if mapped := MapError(err); mapped != nil {
			op.fields["error_code"] = mapped.TextCode
			op.fields["error_category"] = string(mapped.Category)
		}
	}

	tags := map[string]string{"operation": op.name, "status": status}
	for _, key := range metricTagKeys {
		if value, ok := op.fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = value
		}
	}
	op.svc.recordCounter(op.ctx, operationMetric(op.name, "total"), 1, tags)
	op.svc.recordHistogram(op.ctx, operationMetric(op.name, "duration_ms"), float64(elapsed.Milliseconds()), tags)
	op.svc.log(op.ctx, level, op.name+" "+outcome, op.fields)
}

// log prefers structured fields and falls back to sorted key/value args
// for loggers without WithFields.
func (s *Service) log(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	var args []any
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(copyAnyMap(fields))
	} else {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			args = append(args, key, fields[key])
		}
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}
