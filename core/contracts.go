package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type PaymentStore interface {
	GetPayment(ctx context.Context, id string) (Payment, error)
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	// ConditionalUpdatePayment applies patch only when the stored version
	// equals expectedVersion and returns ErrVersionConflict otherwise.
	ConditionalUpdatePayment(ctx context.Context, id string, expectedVersion int64, patch PaymentPatch) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	GetReservationPaymentSummary(ctx context.Context, reservationID string) (ReservationPaymentSummary, error)
}

type ReservationStore interface {
	GetReservation(ctx context.Context, id string) (Reservation, error)
	InsertReservation(ctx context.Context, reservation Reservation) (Reservation, error)
}

type RefundPolicyProvider interface {
	GetRefundPolicy(ctx context.Context, shopID string) (RefundPolicy, error)
}

type CatalogProvider interface {
	GetService(ctx context.Context, serviceID string) (CatalogService, error)
}

// StoreProvider exposes the stores built by a repository factory.
type StoreProvider interface {
	PaymentStore() PaymentStore
	ReservationStore() ReservationStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type IsolationLevel string

const (
	IsolationDefault        IsolationLevel = ""
	IsolationReadCommitted  IsolationLevel = "read_committed"
	IsolationRepeatableRead IsolationLevel = "repeatable_read"
	IsolationSerializable   IsolationLevel = "serializable"
)

type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
}

type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager begins transactions. Stores resolve the active
// transaction from the returned context.
type TransactionManager interface {
	Begin(ctx context.Context, opts TxOptions) (context.Context, Transaction, error)
}

type TransitionEventPublisher interface {
	PublishTransition(ctx context.Context, event PaymentTransitionedEvent) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type SweepLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// PaymentEngine is the public surface of Service.
type PaymentEngine interface {
	ExecuteTransition(ctx context.Context, req ExecuteRequest) (TransitionResult, error)
	ComputeBreakdown(ctx context.Context, req BreakdownRequest) (AmountBreakdown, error)
	CreateCheckoutPayment(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	CreateFinalPayment(ctx context.Context, req FinalPaymentRequest) (FinalPaymentResult, error)
	ComputeFinal(ctx context.Context, reservationID string, override *int64) (FinalPaymentComputation, error)
	ComputeRefund(ctx context.Context, req RefundRequest) (RefundComputation, error)
	ApplyRefund(ctx context.Context, req ApplyRefundRequest) (ApplyRefundResult, error)
	TrackPayments(ctx context.Context, reservationID string) (PartialPaymentStatus, error)
	SweepOverdue(ctx context.Context, req SweepRequest) (SweepResult, error)
	TransferDeposit(ctx context.Context, req TransferDepositRequest) (TransferDepositResult, error)
}
