// Package gojob runs payments background jobs on go-job queues.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDOverdueSweep       = "payments.overdue.sweep"
	JobIDFinalPaymentCreate = "payments.final_payment.create"
)

const (
	DedupDrop  = "drop"
	DedupMerge = "merge"
)

// ValidateJob rejects messages the payments worker could not route, and
// messages without an idempotency key.
func ValidateJob(msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDOverdueSweep, JobIDFinalPaymentCreate:
	case "":
		return fmt.Errorf("gojob: job id is required")
	default:
		return fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
	if strings.TrimSpace(msg.IdempotencyKey) == "" {
		return fmt.Errorf("gojob: job %s has no idempotency key", msg.JobID)
	}
	switch strings.TrimSpace(msg.DedupPolicy) {
	case "", DedupDrop, DedupMerge:
		return nil
	default:
		return fmt.Errorf("gojob: job %s has unknown dedup policy %q", msg.JobID, msg.DedupPolicy)
	}
}

// RetryPolicy bounds how often a failed job goes back on the queue.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func (p RetryPolicy) isZero() bool {
	return p.MaxAttempts == 0 && p.MaxDelay == 0 && !p.DeadLetterOnMax
}

// DefaultRetryPolicy returns the bounds for jobID. A sweep that keeps failing
// is dropped since the next tick enqueues a fresh one; a final payment job is
// retried longer and then dead-lettered for an operator.
func DefaultRetryPolicy(jobID string) RetryPolicy {
	if strings.TrimSpace(jobID) == JobIDOverdueSweep {
		return RetryPolicy{MaxAttempts: 3, MaxDelay: 30 * time.Second}
	}
	return RetryPolicy{MaxAttempts: 8, MaxDelay: 5 * time.Minute, DeadLetterOnMax: true}
}

// Apply clamps opts for the given attempt. Before the limit a nack that
// neither requeues nor dead-letters is turned into a requeue. At the limit
// the job is dead-lettered or, without DeadLetterOnMax, discarded.
func (p RetryPolicy) Apply(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	out.Delay = max(out.Delay, 0)
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	if out.DeadLetter {
		out.Requeue = false
		return out
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
		return out
	}
	out.Requeue = true
	return out
}

// EncodeJob maps a payments job onto go-job. Payments jobs route by id, so
// ScriptPath falls back to JobID.
func EncodeJob(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	jobID := strings.TrimSpace(msg.JobID)
	scriptPath := strings.TrimSpace(msg.ScriptPath)
	if scriptPath == "" {
		scriptPath = jobID
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     scriptPath,
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func DecodeJob(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if err := ValidateJob(msg); err != nil {
		return err
	}
	if err := a.enqueuer.Enqueue(ctx, EncodeJob(msg)); err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.IdempotencyKey, err)
	}
	return nil
}

// DeliveryAdapter exposes a go-job delivery to the payments worker. A zero
// policy means DefaultRetryPolicy for the delivered job.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return DecodeJob(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt applies the retry policy. A requeued message carries the
// attempt in its parameters so the next delivery continues the count.
func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	raw := d.delivery.Message()
	policy := d.policy
	if policy.isZero() && raw != nil {
		policy = DefaultRetryPolicy(raw.JobID)
	}
	applied := policy.Apply(opts, attempt)
	if applied.Requeue && raw != nil {
		if raw.Parameters == nil {
			raw.Parameters = map[string]any{}
		}
		raw.Parameters[ParamAttempt] = attempt
	}
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      applied.Delay,
		Requeue:    applied.Requeue,
		DeadLetter: applied.DeadLetter,
		Reason:     applied.Reason,
	})
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// QueueHook forwards go-job worker events to a payments job hook, so the
// same logging hook serves both worker loops.
type QueueHook struct {
	hook core.JobWorkerHook
}

func NewQueueHook(hook core.JobWorkerHook) *QueueHook {
	return &QueueHook{hook: hook}
}

func (h *QueueHook) OnStart(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (h *QueueHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (h *QueueHook) OnFailure(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (h *QueueHook) OnRetry(ctx context.Context, event worker.Event) {
	h.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (h *QueueHook) forward(
	ctx context.Context,
	event worker.Event,
	fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent),
) {
	if h == nil || h.hook == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fn(h.hook, ctx, core.JobWorkerEvent{
		Message:   DecodeJob(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*QueueHook)(nil)
)
