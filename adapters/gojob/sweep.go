package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

const (
	ParamAsOf          = "as_of"
	ParamBatchSize     = "batch_size"
	ParamAttempt       = "attempt"
	ParamReservationID = "reservation_id"
)

// NewSweepMessage builds an overdue sweep job. The idempotency key is scoped
// to the minute of asOf so duplicate ticks collapse in the queue.
func NewSweepMessage(asOf time.Time, batchSize int) *core.JobExecutionMessage {
	asOf = asOf.UTC()
	params := map[string]any{ParamAsOf: asOf.Format(time.RFC3339Nano)}
	if batchSize > 0 {
		params[ParamBatchSize] = batchSize
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDOverdueSweep,
		ScriptPath:     JobIDOverdueSweep,
		Parameters:     params,
		IdempotencyKey: JobIDOverdueSweep + ":" + asOf.Truncate(time.Minute).Format("200601021504"),
		DedupPolicy:    DedupDrop,
	}
}

// NewFinalPaymentMessage builds a job that opens the final payment of a
// reservation once its deposit is collected.
func NewFinalPaymentMessage(reservationID string) *core.JobExecutionMessage {
	reservationID = strings.TrimSpace(reservationID)
	return &core.JobExecutionMessage{
		JobID:          JobIDFinalPaymentCreate,
		ScriptPath:     JobIDFinalPaymentCreate,
		Parameters:     map[string]any{ParamReservationID: reservationID},
		IdempotencyKey: JobIDFinalPaymentCreate + ":" + reservationID,
		DedupPolicy:    DedupDrop,
	}
}

// ParseSweepRequest reads the sweep parameters of msg.
func ParseSweepRequest(msg *core.JobExecutionMessage) (core.SweepRequest, error) {
	if msg == nil {
		return core.SweepRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	req := core.SweepRequest{}
	if raw, ok := msg.Parameters[ParamAsOf]; ok {
		value, ok := raw.(string)
		if !ok {
			return core.SweepRequest{}, fmt.Errorf("gojob: %s must be an RFC3339 string", ParamAsOf)
		}
		asOf, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
		if err != nil {
			return core.SweepRequest{}, fmt.Errorf("gojob: parse %s: %w", ParamAsOf, err)
		}
		req.AsOf = asOf.UTC()
	}
	batch, err := intParam(msg.Parameters, ParamBatchSize)
	if err != nil {
		return core.SweepRequest{}, err
	}
	if batch < 0 {
		return core.SweepRequest{}, fmt.Errorf("gojob: %s must not be negative", ParamBatchSize)
	}
	req.BatchSize = batch
	return req, nil
}

// JobRunner is the part of the payments service driven by queued jobs.
type JobRunner interface {
	SweepOverdue(ctx context.Context, req core.SweepRequest) (core.SweepResult, error)
	CreateFinalPayment(ctx context.Context, req core.FinalPaymentRequest) (core.FinalPaymentResult, error)
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithRetryDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryDelay = delay
	}
}

func WithIdleDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.idleDelay = delay
	}
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker pulls payments jobs from a dequeuer and runs them against the
// service. Transient failures are requeued under the retry policy, which
// defaults per job to DefaultRetryPolicy. A held sweep lock is acknowledged
// since another instance is already sweeping.
type Worker struct {
	dequeuer   core.JobDequeuer
	runner     JobRunner
	hook       core.JobWorkerHook
	policy     RetryPolicy
	retryDelay time.Duration
	idleDelay  time.Duration
	now        func() time.Time
}

func NewWorker(dequeuer core.JobDequeuer, runner JobRunner, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("gojob: job runner is required")
	}
	w := &Worker{
		dequeuer:   dequeuer,
		runner:     runner,
		retryDelay: 5 * time.Second,
		idleDelay:  time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.idleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// ProcessNext handles one delivery. It reports false when the dequeuer had
// nothing to hand out.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	attempt, _ := intParam(messageParams(msg), ParamAttempt)
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: w.now().UTC()}
	w.onStart(ctx, event)

	runErr := w.execute(ctx, msg)
	event.Duration = w.now().UTC().Sub(event.StartedAt)
	event.Err = runErr

	switch {
	case runErr == nil, core.IsSweepLocked(runErr):
		w.onSuccess(ctx, event)
		return true, delivery.Ack(ctx)
	case core.IsRetryable(runErr):
		event.Delay = w.retryDelay
		w.onRetry(ctx, event)
		return true, w.nack(ctx, delivery, core.JobNackOptions{
			Delay:   w.retryDelay,
			Requeue: true,
			Reason:  runErr.Error(),
		}, attempt+1)
	default:
		w.onFailure(ctx, event)
		return true, w.nack(ctx, delivery, core.JobNackOptions{
			DeadLetter: true,
			Reason:     runErr.Error(),
		}, attempt+1)
	}
}

func (w *Worker) execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: delivery has no message")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDOverdueSweep:
		req, err := ParseSweepRequest(msg)
		if err != nil {
			return err
		}
		_, err = w.runner.SweepOverdue(ctx, req)
		return err
	case JobIDFinalPaymentCreate:
		reservationID, _ := msg.Parameters[ParamReservationID].(string)
		if strings.TrimSpace(reservationID) == "" {
			return fmt.Errorf("gojob: %s is required", ParamReservationID)
		}
		_, err := w.runner.CreateFinalPayment(ctx, core.FinalPaymentRequest{ReservationID: reservationID})
		return err
	default:
		return fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
}

func (w *Worker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions, attempt int) error {
	if adapted, ok := delivery.(*DeliveryAdapter); ok {
		return adapted.NackForAttempt(ctx, opts, attempt)
	}
	policy := w.policy
	if policy.isZero() {
		if msg := delivery.Message(); msg != nil {
			policy = DefaultRetryPolicy(msg.JobID)
		}
	}
	return delivery.Nack(ctx, policy.Apply(opts, attempt))
}

func (w *Worker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

func messageParams(msg *core.JobExecutionMessage) map[string]any {
	if msg == nil {
		return nil
	}
	return msg.Parameters
}

func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch value := raw.(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("gojob: parse %s: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("gojob: %s has unsupported type %T", key, raw)
	}
}
