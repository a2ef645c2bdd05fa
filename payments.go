package payments

import "github.com/goliatone/go-payments/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type PaymentEngine = core.PaymentEngine
type PaymentStore = core.PaymentStore
type ReservationStore = core.ReservationStore
type RefundPolicyProvider = core.RefundPolicyProvider
type CatalogProvider = core.CatalogProvider
type TransactionManager = core.TransactionManager
type TransitionEventPublisher = core.TransitionEventPublisher
type SweepLocker = core.SweepLocker

type Payment = core.Payment
type Reservation = core.Reservation
type PaymentStage = core.PaymentStage
type PaymentStatus = core.PaymentStatus

type ExecuteRequest = core.ExecuteRequest
type CheckoutRequest = core.CheckoutRequest
type FinalPaymentRequest = core.FinalPaymentRequest
type RefundRequest = core.RefundRequest
type ApplyRefundRequest = core.ApplyRefundRequest
type SweepRequest = core.SweepRequest
type TransferDepositRequest = core.TransferDepositRequest

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorMapper          = core.WithErrorMapper
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithPaymentStore         = core.WithPaymentStore
	WithReservationStore     = core.WithReservationStore
	WithRefundPolicyProvider = core.WithRefundPolicyProvider
	WithCatalogProvider      = core.WithCatalogProvider
	WithTransactionManager   = core.WithTransactionManager
	WithEventPublisher       = core.WithEventPublisher
	WithSweepLocker          = core.WithSweepLocker
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
