package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestValidateJob(t *testing.T) {
	if err := ValidateJob(NewFinalPaymentMessage("res_1")); err != nil {
		t.Fatalf("expected final payment job to be valid, got %v", err)
	}
	cases := map[string]*core.JobExecutionMessage{
		"nil":             nil,
		"missing id":      {IdempotencyKey: "k"},
		"unknown id":      {JobID: "payments.unknown", IdempotencyKey: "k"},
		"missing key":     {JobID: JobIDOverdueSweep},
		"unknown dedup":   {JobID: JobIDOverdueSweep, IdempotencyKey: "k", DedupPolicy: "shuffle"},
		"blank key space": {JobID: JobIDFinalPaymentCreate, IdempotencyKey: "   "},
	}
	for name, msg := range cases {
		if err := ValidateJob(msg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEncodeJob_DefaultsScriptPathAndCopiesParameters(t *testing.T) {
	original := NewFinalPaymentMessage(" res_1 ")
	original.ScriptPath = ""

	encoded := EncodeJob(original)
	if encoded.ScriptPath != JobIDFinalPaymentCreate {
		t.Fatalf("expected script path to default to job id, got %q", encoded.ScriptPath)
	}
	if string(encoded.DedupPolicy) != DedupDrop {
		t.Fatalf("unexpected dedup policy %q", encoded.DedupPolicy)
	}
	encoded.Parameters[ParamReservationID] = "res_other"
	if original.Parameters[ParamReservationID] != "res_1" {
		t.Fatalf("expected encoded parameters to be a copy, got %v", original.Parameters)
	}

	decoded := DecodeJob(EncodeJob(original))
	if decoded.IdempotencyKey != JobIDFinalPaymentCreate+":res_1" {
		t.Fatalf("unexpected idempotency key %q", decoded.IdempotencyKey)
	}
	if EncodeJob(nil) != nil || DecodeJob(nil) != nil {
		t.Fatalf("expected nil messages to map to nil")
	}
}

func TestEnqueuerAdapter_ValidatesBeforeEnqueue(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	adapter := NewEnqueuerAdapter(enqueuer)

	if err := adapter.Enqueue(ctx, &core.JobExecutionMessage{JobID: "payments.unknown", IdempotencyKey: "k"}); err == nil {
		t.Fatalf("expected unknown job to be rejected")
	}
	if enqueuer.last != nil {
		t.Fatalf("expected rejected job to stay off the queue")
	}

	if err := adapter.Enqueue(ctx, NewSweepMessage(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), 50)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDOverdueSweep || enqueuer.last.Parameters[ParamBatchSize] != 50 {
		t.Fatalf("expected sweep job on the queue, got %#v", enqueuer.last)
	}

	enqueuer.err = errors.New("queue full")
	if err := adapter.Enqueue(ctx, NewFinalPaymentMessage("res_1")); err == nil || !errors.Is(err, enqueuer.err) {
		t.Fatalf("expected wrapped queue error, got %v", err)
	}
}

func TestDequeuerAdapter_AckAndEmptyQueue(t *testing.T) {
	ctx := context.Background()
	empty := NewDequeuerAdapter(&stubQueueDequeuer{}, RetryPolicy{})
	if delivery, err := empty.Dequeue(ctx); err != nil || delivery != nil {
		t.Fatalf("expected empty dequeue, got %v %v", delivery, err)
	}

	raw := &stubQueueDelivery{msg: EncodeJob(NewSweepMessage(time.Now(), 0))}
	delivery, err := NewDequeuerAdapter(&stubQueueDequeuer{delivery: raw}, RetryPolicy{}).Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message(); got == nil || got.JobID != JobIDOverdueSweep {
		t.Fatalf("expected decoded sweep job, got %#v", got)
	}
	if err := delivery.Ack(ctx); err != nil || !raw.acked {
		t.Fatalf("expected ack on underlying delivery, got %v", err)
	}
}

func TestRetryPolicy_Apply(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	early := policy.Apply(core.JobNackOptions{Delay: 30 * time.Second, Reason: " transient "}, 1)
	if !early.Requeue || early.Delay != 10*time.Second || early.Reason != "transient" {
		t.Fatalf("expected bounded requeue, got %#v", early)
	}
	if negative := policy.Apply(core.JobNackOptions{Delay: -time.Second}, 1); negative.Delay != 0 {
		t.Fatalf("expected negative delay to clamp to zero, got %s", negative.Delay)
	}
	exhausted := policy.Apply(core.JobNackOptions{Requeue: true}, 3)
	if exhausted.Requeue || !exhausted.DeadLetter {
		t.Fatalf("expected dead letter at the limit, got %#v", exhausted)
	}
	explicit := policy.Apply(core.JobNackOptions{Requeue: true, DeadLetter: true}, 0)
	if explicit.Requeue || !explicit.DeadLetter {
		t.Fatalf("expected explicit dead letter to win, got %#v", explicit)
	}

	sweep := DefaultRetryPolicy(JobIDOverdueSweep)
	dropped := sweep.Apply(core.JobNackOptions{Requeue: true}, sweep.MaxAttempts)
	if dropped.Requeue || dropped.DeadLetter {
		t.Fatalf("expected exhausted sweep to be discarded, got %#v", dropped)
	}
	final := DefaultRetryPolicy(JobIDFinalPaymentCreate)
	if !final.DeadLetterOnMax || final.MaxAttempts <= sweep.MaxAttempts {
		t.Fatalf("expected final payment jobs to retry longer and dead-letter, got %#v", final)
	}
}

func TestDeliveryAdapter_StampsAttemptOnRequeue(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueDelivery{msg: EncodeJob(NewFinalPaymentMessage("res_1"))}
	adapter := NewDeliveryAdapter(raw, RetryPolicy{})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Delay: time.Hour, Requeue: true}, 2); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if !raw.nackOpts.Requeue || raw.nackOpts.Delay != 5*time.Minute {
		t.Fatalf("expected default final payment policy, got %#v", raw.nackOpts)
	}
	if raw.msg.Parameters[ParamAttempt] != 2 {
		t.Fatalf("expected attempt to be stamped, got %v", raw.msg.Parameters)
	}
	if got := adapter.Message(); got.Parameters[ParamAttempt] != 2 {
		t.Fatalf("expected the next read to see the attempt, got %v", got.Parameters)
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Requeue: true}, 8); err != nil {
		t.Fatalf("nack at limit: %v", err)
	}
	if raw.nackOpts.Requeue || !raw.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter at the default limit, got %#v", raw.nackOpts)
	}
	if raw.msg.Parameters[ParamAttempt] != 2 {
		t.Fatalf("expected dead-lettered attempt to be left alone, got %v", raw.msg.Parameters)
	}
}

func TestQueueHook_ForwardsWorkerEvents(t *testing.T) {
	startedAt := time.Now().UTC().Add(-time.Second)
	captured := &capturingHook{}
	hook := NewQueueHook(captured)

	hook.OnRetry(context.Background(), worker.Event{
		Delivery:  &stubQueueDelivery{msg: EncodeJob(NewFinalPaymentMessage("res_9"))},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: startedAt,
		Duration:  250 * time.Millisecond,
	})
	hook.OnSuccess(context.Background(), worker.Event{Message: EncodeJob(NewSweepMessage(startedAt, 0))})

	if len(captured.events) != 2 || captured.events[0].kind != "retry" || captured.events[1].kind != "success" {
		t.Fatalf("unexpected forwarded events %#v", captured.events)
	}
	retry := captured.events[0].event
	if retry.Message == nil || retry.Message.Parameters[ParamReservationID] != "res_9" {
		t.Fatalf("expected message from delivery, got %#v", retry.Message)
	}
	if retry.Attempt != 2 || retry.Delay != 5*time.Second || retry.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected retry timing %#v", retry)
	}
	if !retry.StartedAt.Equal(startedAt) || retry.Err == nil {
		t.Fatalf("expected start time and error to carry over, got %#v", retry)
	}
	if captured.events[1].event.Message.JobID != JobIDOverdueSweep {
		t.Fatalf("expected sweep message on success, got %#v", captured.events[1].event.Message)
	}

	var nilHook *QueueHook
	nilHook.OnFailure(context.Background(), worker.Event{})
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
	err  error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if s.err != nil {
		return s.err
	}
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type hookEvent struct {
	kind  string
	event core.JobWorkerEvent
}

type capturingHook struct {
	events []hookEvent
}

func (h *capturingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, hookEvent{"start", event})
}

func (h *capturingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, hookEvent{"success", event})
}

func (h *capturingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, hookEvent{"failure", event})
}

func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.events = append(h.events, hookEvent{"retry", event})
}
