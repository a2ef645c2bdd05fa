package core

import (
	"context"
	"strings"
)

const (
	metricTransitions    = "payments.transition.total"
	metricRefundAmount   = "payments.refund.amount"
	metricSweepScanned   = "payments.sweep.scanned"
	metricSweepMarked    = "payments.sweep.marked"
	metricSweepConflicts = "payments.sweep.conflicts"
	metricSweepFailed    = "payments.sweep.failed"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func operationMetric(operation string, suffix string) string {
	return "payments." + operation + "." + suffix
}

// recordTransition counts committed status changes by stage and edge.
func (s *Service) recordTransition(ctx context.Context, result TransitionResult) {
	if !result.Success {
		return
	}
	s.recordCounter(ctx, metricTransitions, 1, map[string]string{
		"stage": string(result.Payment.Stage),
		"from":  string(result.PreviousStatus),
		"to":    string(result.NewStatus),
	})
}

func (s *Service) recordRefund(ctx context.Context, stage PaymentStage, amount int64) {
	if amount <= 0 {
		return
	}
	s.recordHistogram(ctx, metricRefundAmount, float64(amount), map[string]string{"stage": string(stage)})
}

func (s *Service) recordSweep(ctx context.Context, result SweepResult) {
	for name, value := range map[string]int{
		metricSweepScanned:   result.Scanned,
		metricSweepMarked:    result.Marked,
		metricSweepConflicts: result.Conflicts,
		metricSweepFailed:    result.Failed,
	} {
		if value > 0 {
			s.recordCounter(ctx, name, int64(value), nil)
		}
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
