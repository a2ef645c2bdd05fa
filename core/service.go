package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config               Config
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	errorMapper          ErrorMapper
	persistenceClient    any
	repositoryFactory    any
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	paymentStore         PaymentStore
	reservationStore     ReservationStore
	refundPolicyProvider RefundPolicyProvider
	catalogProvider      CatalogProvider
	transactionManager   TransactionManager
	eventPublisher       TransitionEventPublisher
	sweepLocker          SweepLocker
	clock                func() time.Time

	coordinator *TransactionCoordinator
	executor    *TransitionExecutor
	amounts     AmountCalculator
	validator   PaymentValidator
	refunds     RefundCalculator
	policies    RefundPolicyResolver
}

type ServiceDependencies struct {
	Logger               Logger
	LoggerProvider       LoggerProvider
	MetricsRecorder      MetricsRecorder
	ErrorMapper          ErrorMapper
	PersistenceClient    any
	RepositoryFactory    any
	ConfigProvider       ConfigProvider
	OptionsResolver      OptionsResolver
	PaymentStore         PaymentStore
	ReservationStore     ReservationStore
	RefundPolicyProvider RefundPolicyProvider
	CatalogProvider      CatalogProvider
	TransactionManager   TransactionManager
	EventPublisher       TransitionEventPublisher
	SweepLocker          SweepLocker
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("payments", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("payments"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.sweepLocker == nil {
		builder.sweepLocker = NewMemorySweepLocker()
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveFactoryStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	clock := builder.clock
	coordinator := NewTransactionCoordinator(builder.transactionManager, logger)
	validator := NewPaymentValidator(finalConfig)
	executor := NewTransitionExecutor(
		builder.paymentStore,
		coordinator,
		validator,
		builder.eventPublisher,
		logger,
		TransitionExecutorConfig{
			GracePeriod: finalConfig.GracePeriod(),
			Profiles: map[string]TransactionProfile{
				ProfileBooking:            BookingProfile(finalConfig),
				ProfileConflictResolution: ConflictResolutionProfile(finalConfig),
			},
		},
	)
	executor.now = clock
	executor.validator.now = clock
	refunds := NewRefundCalculator()
	refunds.now = clock

	return &Service{
		config:               finalConfig,
		logger:               logger,
		loggerProvider:       provider,
		metricsRecorder:      builder.metricsRecorder,
		errorMapper:          builder.errorMapper,
		persistenceClient:    builder.persistenceClient,
		repositoryFactory:    builder.repositoryFactory,
		configProvider:       builder.configProvider,
		optionsResolver:      builder.optionsResolver,
		paymentStore:         builder.paymentStore,
		reservationStore:     builder.reservationStore,
		refundPolicyProvider: builder.refundPolicyProvider,
		catalogProvider:      builder.catalogProvider,
		transactionManager:   builder.transactionManager,
		eventPublisher:       builder.eventPublisher,
		sweepLocker:          builder.sweepLocker,
		clock:                clock,
		coordinator:          coordinator,
		executor:             executor,
		amounts:              NewAmountCalculator(finalConfig.Deposit),
		validator:            validator,
		refunds:              refunds,
		policies:             NewRefundPolicyResolver(builder.refundPolicyProvider, finalConfig.DefaultRefundPolicy.Policy()),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

// resolveFactoryStores fills unset stores from the repository factory.
func resolveFactoryStores(builder *serviceBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}
	source := builder.repositoryFactory
	if storeFactory, ok := source.(RepositoryStoreFactory); ok && (builder.paymentStore == nil || builder.reservationStore == nil) {
		provider, err := storeFactory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		if provider != nil {
			source = provider
		}
	}
	if provider, ok := source.(StoreProvider); ok {
		if builder.paymentStore == nil {
			builder.paymentStore = provider.PaymentStore()
		}
		if builder.reservationStore == nil {
			builder.reservationStore = provider.ReservationStore()
		}
	}
	if builder.refundPolicyProvider == nil {
		if provider, ok := source.(interface{ RefundPolicyProvider() RefundPolicyProvider }); ok {
			builder.refundPolicyProvider = provider.RefundPolicyProvider()
		}
	}
	if builder.catalogProvider == nil {
		if provider, ok := source.(interface{ CatalogProvider() CatalogProvider }); ok {
			builder.catalogProvider = provider.CatalogProvider()
		}
	}
	if builder.transactionManager == nil {
		if provider, ok := source.(interface{ TransactionManager() TransactionManager }); ok {
			builder.transactionManager = provider.TransactionManager()
		}
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:               s.logger,
		LoggerProvider:       s.loggerProvider,
		MetricsRecorder:      s.metricsRecorder,
		ErrorMapper:          s.errorMapper,
		PersistenceClient:    s.persistenceClient,
		RepositoryFactory:    s.repositoryFactory,
		ConfigProvider:       s.configProvider,
		OptionsResolver:      s.optionsResolver,
		PaymentStore:         s.paymentStore,
		ReservationStore:     s.reservationStore,
		RefundPolicyProvider: s.refundPolicyProvider,
		CatalogProvider:      s.catalogProvider,
		TransactionManager:   s.transactionManager,
		EventPublisher:       s.eventPublisher,
		SweepLocker:          s.sweepLocker,
	}
}

type BreakdownRequest struct {
	Services  []ServiceRequest
	Lines     []ServiceLine
	Discounts []Discount
}

type CheckoutRequest struct {
	// ReservationID is optional. An unknown id creates the reservation.
	ReservationID string
	ShopID        string
	Currency      string
	Services      []ServiceRequest
	Lines         []ServiceLine
	Discounts     []Discount
	Metadata      map[string]any
}

type CheckoutResult struct {
	Reservation Reservation
	Payment     Payment
	Breakdown   AmountBreakdown
	Warnings    []string
}

type FinalPaymentRequest struct {
	ReservationID  string
	OverrideAmount *int64
}

type FinalPaymentResult struct {
	Computation FinalPaymentComputation
	// Payment is the outstanding final payment, nil when nothing is owed.
	Payment          *Payment
	Created          bool
	RequiresRefund   bool
	AdvancedDeposits []string
	Warnings         []string
}

type RefundRequest struct {
	PaymentID       string
	RequestedAmount *int64
	Reason          string
}

type ApplyRefundRequest struct {
	PaymentID       string
	RequestedAmount *int64
	Reason          string
	// Target defaults to deposit_refunded or final_payment_refunded for the
	// deposit and final stages. Single-stage payments must name it.
	Target PaymentStatus
}

type ApplyRefundResult struct {
	Computation RefundComputation
	Transition  TransitionResult
}

type SweepRequest struct {
	AsOf      time.Time
	BatchSize int
}

type SweepResult struct {
	AsOf      time.Time
	Scanned   int
	Marked    int
	Conflicts int
	Failed    int
	MarkedIDs []string
}

type TransferDepositRequest struct {
	SourcePaymentID     string
	TargetReservationID string
	Reason              string
}

type TransferDepositResult struct {
	Source   Payment
	Target   Payment
	Amount   int64
	Warnings []string
}

func (s *Service) ExecuteTransition(ctx context.Context, req ExecuteRequest) (result TransitionResult, err error) {
	op := s.beginOperation(ctx, "execute_transition", map[string]any{
		"payment_id":    req.PaymentID,
		"target_status": string(req.Target),
		"stage":         string(req.Stage),
	})
	defer func() { op.end(err) }()

	if err = s.requirePayments(); err != nil {
		err = s.mapError(err)
		return TransitionResult{}, err
	}
	result, err = s.executor.Execute(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	s.recordTransition(ctx, result)
	op.set("reservation_id", result.Payment.ReservationID)
	op.set("version", result.Payment.Version)
	return result, nil
}

func (s *Service) ComputeBreakdown(ctx context.Context, req BreakdownRequest) (breakdown AmountBreakdown, err error) {
	op := s.beginOperation(ctx, "compute_breakdown", map[string]any{
		"services":  len(req.Services) + len(req.Lines),
		"discounts": len(req.Discounts),
	})
	defer func() { op.end(err) }()

	breakdown, err = s.breakdown(ctx, req.Services, req.Lines, req.Discounts)
	if err != nil {
		err = s.mapError(err)
		return AmountBreakdown{}, err
	}
	return breakdown, nil
}

func (s *Service) breakdown(ctx context.Context, services []ServiceRequest, lines []ServiceLine, discounts []Discount) (AmountBreakdown, error) {
	all := append([]ServiceLine(nil), lines...)
	if len(services) > 0 {
		if s == nil || s.catalogProvider == nil {
			return AmountBreakdown{}, newPaymentError("catalog provider is not configured", goerrors.CategoryInternal, PaymentErrorInternal)
		}
		resolved, err := BuildLines(ctx, s.catalogProvider, services)
		if err != nil {
			return AmountBreakdown{}, err
		}
		all = append(all, resolved...)
	}
	if len(all) == 0 {
		return AmountBreakdown{}, newValidationError("at least one service is required", goerrors.FieldError{
			Field:   "services",
			Message: "required",
		})
	}
	return s.amounts.ComputeBreakdown(all, discounts)
}

// CreateCheckoutPayment prices the order and records the reservation with its
// first pending payment in one transaction.
func (s *Service) CreateCheckoutPayment(ctx context.Context, req CheckoutRequest) (result CheckoutResult, err error) {
	op := s.beginOperation(ctx, "create_checkout_payment", map[string]any{
		"reservation_id": req.ReservationID,
		"shop_id":        req.ShopID,
	})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return CheckoutResult{}, err
	}
	breakdown, err := s.breakdown(ctx, req.Services, req.Lines, req.Discounts)
	if err != nil {
		err = s.mapError(err)
		return CheckoutResult{}, err
	}
	if breakdown.AmountAfterDiscounts <= 0 {
		err = s.mapError(newValidationError("order total after discounts must be positive", goerrors.FieldError{
			Field:   "discounts",
			Message: fmt.Sprintf("amount after discounts is %d", breakdown.AmountAfterDiscounts),
		}))
		return CheckoutResult{}, err
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.config.Currency
	}
	now := s.now()
	candidate := Reservation{
		ID:            strings.TrimSpace(req.ReservationID),
		ShopID:        strings.TrimSpace(req.ShopID),
		TotalPrice:    breakdown.AmountAfterDiscounts,
		DepositAmount: breakdown.TotalDeposit,
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payment := Payment{
		Amount:    breakdown.AmountAfterDiscounts,
		Currency:  currency,
		Stage:     PaymentStageSingle,
		Status:    PaymentStatusPending,
		Metadata:  copyAnyMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if breakdown.TotalDeposit > 0 && breakdown.RemainingAmount > 0 {
		payment.Amount = breakdown.TotalDeposit
		payment.Stage = PaymentStageDeposit
	}
	if err = s.validator.ValidateAmount(payment.Amount); err != nil {
		err = s.mapError(err)
		return CheckoutResult{}, err
	}

	var warnings []string
	err = s.coordinator.RunInTransaction(ctx, s.executor.profile(ProfileBooking), func(txCtx context.Context) error {
		reservation, created, resolveErr := s.resolveCheckoutReservation(txCtx, candidate)
		if resolveErr != nil {
			return resolveErr
		}
		warnings = nil
		if !created && reservation.TotalPrice != candidate.TotalPrice {
			warnings = append(warnings, fmt.Sprintf(
				"reservation total %d differs from checkout total %d", reservation.TotalPrice, candidate.TotalPrice,
			))
		}
		record := payment
		record.ReservationID = reservation.ID
		record.Currency = reservation.Currency
		inserted, insertErr := s.paymentStore.InsertPayment(txCtx, record)
		if insertErr != nil {
			return insertErr
		}
		result.Reservation = reservation
		result.Payment = inserted
		return nil
	})
	if err != nil {
		err = s.mapError(err)
		return CheckoutResult{}, err
	}

	result.Breakdown = breakdown
	result.Warnings = warnings
	for _, warning := range warnings {
		s.logger.Warn("checkout warning", "reservation_id", result.Reservation.ID, "warning", warning)
	}
	op.set("reservation_id", result.Reservation.ID)
	op.set("payment_id", result.Payment.ID)
	op.set("stage", string(result.Payment.Stage))
	return result, nil
}

func (s *Service) resolveCheckoutReservation(ctx context.Context, candidate Reservation) (Reservation, bool, error) {
	if candidate.ID != "" {
		existing, err := s.reservationStore.GetReservation(ctx, candidate.ID)
		if err == nil {
			return existing, false, nil
		}
		if !IsNotFound(err) {
			return Reservation{}, false, err
		}
	}
	if err := candidate.Validate(); err != nil {
		return Reservation{}, false, newValidationError(err.Error(), goerrors.FieldError{
			Field:   "reservation",
			Message: err.Error(),
		})
	}
	created, err := s.reservationStore.InsertReservation(ctx, candidate)
	if err != nil {
		return Reservation{}, false, err
	}
	return created, true, nil
}

// CreateFinalPayment settles the reservation balance. It returns the
// outstanding final payment when one exists and creates it otherwise.
func (s *Service) CreateFinalPayment(ctx context.Context, req FinalPaymentRequest) (result FinalPaymentResult, err error) {
	op := s.beginOperation(ctx, "create_final_payment", map[string]any{"reservation_id": req.ReservationID})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return FinalPaymentResult{}, err
	}
	reservation, payments, err := s.loadLedger(ctx, req.ReservationID)
	if err != nil {
		err = s.mapError(err)
		return FinalPaymentResult{}, err
	}
	computation := ComputeSettlement(reservation, payments, req.OverrideAmount)
	result.Computation = computation
	result.RequiresRefund = computation.Breakdown.RequiresRefund
	op.set("remaining", computation.Remaining)
	op.set("overpayment", computation.Overpayment)
	if result.RequiresRefund {
		s.logger.Warn("reservation is overpaid and requires a refund",
			"reservation_id", reservation.ID,
			"overpayment", computation.Overpayment,
		)
	}
	if computation.Remaining <= 0 {
		return result, nil
	}

	for _, payment := range payments {
		if payment.Stage != PaymentStageFinal {
			continue
		}
		switch payment.Status {
		case PaymentStatusPending, PaymentStatusFinalPaymentPending, PaymentStatusOverdue:
			existing := payment
			result.Payment = &existing
			return result, nil
		}
	}

	if err = s.validator.ValidateAmount(computation.Remaining); err != nil {
		err = s.mapError(err)
		return result, err
	}
	now := s.now()
	due := now.Add(s.config.GracePeriod())
	final := Payment{
		ReservationID: reservation.ID,
		Amount:        computation.Remaining,
		Currency:      reservation.Currency,
		Stage:         PaymentStageFinal,
		Status:        PaymentStatusFinalPaymentPending,
		DueDate:       &due,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := RunInTransactionResult(ctx, s.coordinator, s.executor.profile(ProfileBooking), func(txCtx context.Context) (Payment, error) {
		return s.paymentStore.InsertPayment(txCtx, final)
	})
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	result.Payment = &inserted
	result.Created = true
	op.set("payment_id", inserted.ID)

	for _, payment := range payments {
		if payment.Stage != PaymentStageDeposit || payment.Status != PaymentStatusDepositPaid {
			continue
		}
		version := payment.Version
		_, advanceErr := s.executor.Execute(ctx, ExecuteRequest{
			PaymentID:       payment.ID,
			Target:          PaymentStatusFinalPaymentPending,
			Stage:           PaymentStageDeposit,
			ExpectedVersion: &version,
		})
		if advanceErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("deposit %s was not advanced: %v", payment.ID, advanceErr))
			continue
		}
		result.AdvancedDeposits = append(result.AdvancedDeposits, payment.ID)
	}
	return result, nil
}

func (s *Service) ComputeFinal(ctx context.Context, reservationID string, override *int64) (computation FinalPaymentComputation, err error) {
	op := s.beginOperation(ctx, "compute_final", map[string]any{"reservation_id": reservationID})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return FinalPaymentComputation{}, err
	}
	reservation, payments, err := s.loadLedger(ctx, reservationID)
	if err != nil {
		err = s.mapError(err)
		return FinalPaymentComputation{}, err
	}
	return ComputeSettlement(reservation, payments, override), nil
}

func (s *Service) TrackPayments(ctx context.Context, reservationID string) (status PartialPaymentStatus, err error) {
	op := s.beginOperation(ctx, "track_payments", map[string]any{"reservation_id": reservationID})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return PartialPaymentStatus{}, err
	}
	reservation, payments, err := s.loadLedger(ctx, reservationID)
	if err != nil {
		err = s.mapError(err)
		return PartialPaymentStatus{}, err
	}
	status = TrackPartialPayments(reservation, payments)
	op.set("next_stage", string(status.NextStage))
	return status, nil
}

func (s *Service) loadLedger(ctx context.Context, reservationID string) (Reservation, []Payment, error) {
	reservationID = strings.TrimSpace(reservationID)
	if reservationID == "" {
		return Reservation{}, nil, newValidationError("reservation id is required", goerrors.FieldError{
			Field:   "reservation_id",
			Message: "required",
		})
	}
	reservation, err := s.reservationStore.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, nil, err
	}
	payments, err := s.paymentStore.ListPayments(ctx, PaymentFilter{ReservationID: reservationID})
	if err != nil {
		return Reservation{}, nil, err
	}
	return reservation, payments, nil
}

func (s *Service) ComputeRefund(ctx context.Context, req RefundRequest) (computation RefundComputation, err error) {
	op := s.beginOperation(ctx, "compute_refund", map[string]any{"payment_id": req.PaymentID})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return RefundComputation{}, err
	}
	_, computation, err = s.computeRefund(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return RefundComputation{}, err
	}
	op.set("policy_source", string(computation.Breakdown.PolicySource))
	op.set("final_amount", computation.Breakdown.FinalAmount)
	return computation, nil
}

func (s *Service) computeRefund(ctx context.Context, req RefundRequest) (Payment, RefundComputation, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return Payment{}, RefundComputation{}, newValidationError("payment id is required", goerrors.FieldError{
			Field:   "payment_id",
			Message: "required",
		})
	}
	payment, err := s.paymentStore.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, RefundComputation{}, err
	}
	reservation, err := s.reservationStore.GetReservation(ctx, payment.ReservationID)
	if err != nil {
		return Payment{}, RefundComputation{}, err
	}
	policy, source, err := s.policies.Resolve(ctx, reservation.ShopID)
	if err != nil {
		return Payment{}, RefundComputation{}, err
	}
	computation, err := s.refunds.Compute(payment, policy, source, req.RequestedAmount, req.Reason)
	if err != nil {
		return Payment{}, RefundComputation{}, err
	}
	return payment, computation, nil
}

// ApplyRefund computes the policy refund and records it through the executor
// against the version the computation was based on.
func (s *Service) ApplyRefund(ctx context.Context, req ApplyRefundRequest) (result ApplyRefundResult, err error) {
	op := s.beginOperation(ctx, "apply_refund", map[string]any{
		"payment_id":    req.PaymentID,
		"target_status": string(req.Target),
	})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return ApplyRefundResult{}, err
	}
	payment, computation, err := s.computeRefund(ctx, RefundRequest{
		PaymentID:       req.PaymentID,
		RequestedAmount: req.RequestedAmount,
		Reason:          req.Reason,
	})
	if err != nil {
		err = s.mapError(err)
		return ApplyRefundResult{}, err
	}
	result.Computation = computation
	amount := computation.Breakdown.FinalAmount
	if amount <= 0 {
		err = s.mapError(newValidationError("refund amount resolves to zero", goerrors.FieldError{
			Field:   "requested_amount",
			Message: fmt.Sprintf("policy allows %d", computation.Calculated),
		}))
		return result, err
	}

	target, err := refundTarget(payment.Stage, req.Target)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	op.set("target_status", string(target))
	op.set("refund_amount", amount)

	version := payment.Version
	result.Transition, err = s.executor.Execute(ctx, ExecuteRequest{
		PaymentID: payment.ID,
		Target:    target,
		Stage:     payment.Stage,
		Context: TransitionContext{
			RefundAmount:   amount,
			OriginalAmount: payment.Amount,
			Reason:         req.Reason,
		},
		ExpectedVersion: &version,
	})
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	s.recordTransition(ctx, result.Transition)
	s.recordRefund(ctx, payment.Stage, amount)
	return result, nil
}

func refundTarget(stage PaymentStage, requested PaymentStatus) (PaymentStatus, error) {
	if requested != "" {
		if !requested.IsRefund() {
			return "", newValidationError(fmt.Sprintf("%q is not a refund status", requested), goerrors.FieldError{
				Field:   "target",
				Message: "must be a refund status",
			})
		}
		return requested, nil
	}
	switch stage {
	case PaymentStageDeposit:
		return PaymentStatusDepositRefunded, nil
	case PaymentStageFinal:
		return PaymentStatusFinalPaymentRefunded, nil
	default:
		return "", newValidationError("single-stage refunds must name refunded or partially_refunded", goerrors.FieldError{
			Field:   "target",
			Message: "required",
		})
	}
}

// SweepOverdue marks final payments past their due date as overdue. Each
// payment is an independent unit; conflicts and failures are counted.
func (s *Service) SweepOverdue(ctx context.Context, req SweepRequest) (result SweepResult, err error) {
	op := s.beginOperation(ctx, "sweep_overdue", map[string]any{"batch_size": req.BatchSize})
	defer func() { op.end(err) }()

	if err = s.requirePayments(); err != nil {
		err = s.mapError(err)
		return SweepResult{}, err
	}
	handle, err := s.sweepLocker.Acquire(ctx, s.config.Sweep.LockKey, s.config.Sweep.LockTTL)
	if err != nil {
		err = s.mapError(err)
		return SweepResult{}, err
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.logger.Warn("release sweep lock failed", "key", s.config.Sweep.LockKey, "error", unlockErr.Error())
		}
	}()

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	limit := req.BatchSize
	if limit <= 0 {
		limit = s.config.Sweep.BatchSize
	}
	result.AsOf = asOf.UTC()

	due, err := s.paymentStore.ListPayments(ctx, PaymentFilter{
		Stage:     PaymentStageFinal,
		Statuses:  []PaymentStatus{PaymentStatusFinalPaymentPending},
		DueBefore: &result.AsOf,
		Limit:     limit,
	})
	if err != nil {
		err = s.mapError(err)
		return result, err
	}

	for _, payment := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = s.mapError(ctxErr)
			return result, err
		}
		result.Scanned++
		version := payment.Version
		_, execErr := s.executor.Execute(ctx, ExecuteRequest{
			PaymentID:       payment.ID,
			Target:          PaymentStatusOverdue,
			Stage:           PaymentStageFinal,
			ExpectedVersion: &version,
			Profile:         ProfileConflictResolution,
		})
		switch {
		case execErr == nil:
			result.Marked++
			result.MarkedIDs = append(result.MarkedIDs, payment.ID)
		case IsConflict(execErr):
			result.Conflicts++
		default:
			result.Failed++
			s.logger.Warn("overdue sweep could not mark payment", "payment_id", payment.ID, "error", execErr.Error())
		}
	}

	op.set("scanned", result.Scanned)
	op.set("marked", result.Marked)
	op.set("conflicts", result.Conflicts)
	op.set("failed", result.Failed)
	s.recordSweep(ctx, result)
	return result, nil
}

// TransferDeposit moves a collected deposit to another reservation. The source
// deposit is refunded and a paid deposit is recorded on the target in one
// two-phase unit.
func (s *Service) TransferDeposit(ctx context.Context, req TransferDepositRequest) (result TransferDepositResult, err error) {
	op := s.beginOperation(ctx, "transfer_deposit", map[string]any{
		"payment_id":            req.SourcePaymentID,
		"target_reservation_id": req.TargetReservationID,
	})
	defer func() { op.end(err) }()

	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}
	sourceID := strings.TrimSpace(req.SourcePaymentID)
	targetID := strings.TrimSpace(req.TargetReservationID)
	if sourceID == "" || targetID == "" {
		err = s.mapError(newValidationError("source payment and target reservation are required",
			goerrors.FieldError{Field: "source_payment_id", Message: "required"},
			goerrors.FieldError{Field: "target_reservation_id", Message: "required"},
		))
		return TransferDepositResult{}, err
	}

	source, err := s.paymentStore.GetPayment(ctx, sourceID)
	if err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}
	if source.Stage != PaymentStageDeposit || source.Status != PaymentStatusDepositPaid {
		err = s.mapError(newValidationError(fmt.Sprintf(
			"payment %q is %s/%s, only paid deposits can be transferred", source.ID, source.Stage, source.Status,
		)))
		return TransferDepositResult{}, err
	}
	if source.ReservationID == targetID {
		err = s.mapError(newValidationError("target reservation must differ from the source reservation"))
		return TransferDepositResult{}, err
	}
	target, err := s.reservationStore.GetReservation(ctx, targetID)
	if err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}

	amount := source.Refundable()
	sourcePatch, warnings, err := s.executor.plan(source, PaymentStatusDepositRefunded, TransitionContext{
		RefundAmount:   amount,
		OriginalAmount: source.Amount,
		Reason:         req.Reason,
	})
	if err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}
	if err = s.validator.ValidateAmount(amount); err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}
	now := s.now()
	deposit := Payment{
		ReservationID: target.ID,
		Amount:        amount,
		Currency:      source.Currency,
		Stage:         PaymentStageDeposit,
		Status:        PaymentStatusPending,
		Metadata:      map[string]any{"transferred_from": source.ID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var refunded, credited Payment
	err = s.coordinator.RunTwoPhase(ctx, s.executor.profile(ProfileBooking), []Participant{
		{
			Name:    "source",
			Manager: s.transactionManager,
			Prepare: func(txCtx context.Context) error {
				updated, writeErr := s.executor.write(txCtx, source, sourcePatch)
				if writeErr != nil {
					return writeErr
				}
				refunded = updated
				return nil
			},
		},
		{
			Name:    "target",
			Manager: s.transactionManager,
			Prepare: func(txCtx context.Context) error {
				inserted, insertErr := s.paymentStore.InsertPayment(txCtx, deposit)
				if insertErr != nil {
					return insertErr
				}
				patch, _, planErr := s.executor.plan(inserted, PaymentStatusDepositPaid, TransitionContext{PaymentAmount: amount})
				if planErr != nil {
					return planErr
				}
				paid, writeErr := s.executor.write(txCtx, inserted, patch)
				if writeErr != nil {
					return writeErr
				}
				credited = paid
				return nil
			},
		},
	})
	if err != nil {
		err = s.mapError(err)
		return TransferDepositResult{}, err
	}

	s.executor.publish(ctx, PaymentStatusDepositPaid, refunded)
	s.executor.publish(ctx, PaymentStatusPending, credited)
	op.set("target_payment_id", credited.ID)
	op.set("amount", amount)
	return TransferDepositResult{
		Source:   refunded,
		Target:   credited,
		Amount:   amount,
		Warnings: warnings,
	}, nil
}

func (s *Service) requirePayments() error {
	if s == nil || s.paymentStore == nil || s.executor == nil {
		return newPaymentError("payment store is not configured", goerrors.CategoryInternal, PaymentErrorInternal)
	}
	if s.transactionManager == nil {
		return newPaymentError("transaction manager is not configured", goerrors.CategoryInternal, PaymentErrorInternal)
	}
	return nil
}

func (s *Service) requireLedger() error {
	if err := s.requirePayments(); err != nil {
		return err
	}
	if s.reservationStore == nil {
		return newPaymentError("reservation store is not configured", goerrors.CategoryInternal, PaymentErrorInternal)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
