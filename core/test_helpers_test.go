package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memoryLedger struct {
	mu           sync.Mutex
	seq          int
	payments     map[string]Payment
	reservations map[string]Reservation
	policies     map[string]RefundPolicy
	services     map[string]CatalogService

	// afterGet runs outside the lock once GetPayment has read a row.
	afterGet func(id string)
	// updateErrs are returned, in order, by the next conditional updates.
	updateErrs []error
	updates    int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		payments:     map[string]Payment{},
		reservations: map[string]Reservation{},
		policies:     map[string]RefundPolicy{},
		services:     map[string]CatalogService{},
	}
}

func (l *memoryLedger) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s_%d", prefix, l.seq)
}

func (l *memoryLedger) GetPayment(_ context.Context, id string) (Payment, error) {
	l.mu.Lock()
	payment, ok := l.payments[id]
	hook := l.afterGet
	l.mu.Unlock()
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	if hook != nil {
		hook(id)
	}
	return payment, nil
}

func (l *memoryLedger) InsertPayment(ctx context.Context, payment Payment) (Payment, error) {
	if err := payment.Validate(); err != nil {
		return Payment{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if payment.ID == "" {
		payment.ID = l.nextID("pay")
	}
	if _, exists := l.payments[payment.ID]; exists {
		return Payment{}, fmt.Errorf("memory ledger: duplicate payment %s", payment.ID)
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.UpdatedAt = payment.CreatedAt
	payment.Version = 0
	l.payments[payment.ID] = payment
	id := payment.ID
	journal(ctx, func() { delete(l.payments, id) })
	return payment, nil
}

func (l *memoryLedger) ConditionalUpdatePayment(ctx context.Context, id string, expectedVersion int64, patch PaymentPatch) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates++
	if len(l.updateErrs) > 0 {
		err := l.updateErrs[0]
		l.updateErrs = l.updateErrs[1:]
		if err != nil {
			return Payment{}, err
		}
	}
	current, ok := l.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	if current.Version != expectedVersion {
		return Payment{}, fmt.Errorf("%w: %s at version %d", ErrVersionConflict, id, expectedVersion)
	}
	next := current
	next.Status = patch.Status
	if patch.ClearDueDate {
		next.DueDate = nil
	}
	if patch.DueDate != nil {
		next.DueDate = cloneTime(patch.DueDate)
	}
	if patch.PaidAt != nil {
		next.PaidAt = cloneTime(patch.PaidAt)
	}
	if patch.RefundAmount != nil {
		next.RefundAmount = *patch.RefundAmount
	}
	next.UpdatedAt = patch.UpdatedAt
	next.Version = current.Version + 1
	l.payments[id] = next
	journal(ctx, func() { l.payments[id] = current })
	return next, nil
}

func (l *memoryLedger) ListPayments(_ context.Context, filter PaymentFilter) ([]Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []Payment{}
	for _, payment := range l.payments {
		if filter.ReservationID != "" && payment.ReservationID != filter.ReservationID {
			continue
		}
		if filter.Stage != "" && payment.Stage != filter.Stage {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, payment.Status) {
			continue
		}
		if filter.DueBefore != nil && (payment.DueDate == nil || !payment.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		out = append(out, payment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *memoryLedger) GetReservationPaymentSummary(ctx context.Context, reservationID string) (ReservationPaymentSummary, error) {
	reservation, err := l.GetReservation(ctx, reservationID)
	if err != nil {
		return ReservationPaymentSummary{}, err
	}
	payments, _ := l.ListPayments(ctx, PaymentFilter{ReservationID: reservationID})
	summary := ReservationPaymentSummary{
		ReservationID: reservationID,
		TotalPrice:    reservation.TotalPrice,
		PaymentCount:  len(payments),
	}
	for _, payment := range payments {
		if IsCollected(payment.Stage, payment.Status) {
			summary.Collected += payment.Amount
			summary.Refunded += payment.RefundAmount
		}
	}
	return summary, nil
}

func (l *memoryLedger) GetReservation(_ context.Context, id string) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reservation, ok := l.reservations[id]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	return reservation, nil
}

func (l *memoryLedger) InsertReservation(ctx context.Context, reservation Reservation) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reservation.ID == "" {
		reservation.ID = l.nextID("res")
	}
	l.reservations[reservation.ID] = reservation
	id := reservation.ID
	journal(ctx, func() { delete(l.reservations, id) })
	return reservation, nil
}

func (l *memoryLedger) GetRefundPolicy(_ context.Context, shopID string) (RefundPolicy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	policy, ok := l.policies[shopID]
	if !ok {
		return RefundPolicy{}, fmt.Errorf("%w: %s", ErrRefundPolicyMissing, shopID)
	}
	return policy, nil
}

func (l *memoryLedger) GetService(_ context.Context, serviceID string) (CatalogService, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	service, ok := l.services[serviceID]
	if !ok {
		return CatalogService{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return service, nil
}

func (l *memoryLedger) put(payment Payment) Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	if payment.Currency == "" {
		payment.Currency = "KRW"
	}
	l.payments[payment.ID] = payment
	return payment
}

func (l *memoryLedger) putReservation(reservation Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reservations[reservation.ID] = reservation
}

func (l *memoryLedger) payment(t *testing.T, id string) Payment {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	payment, ok := l.payments[id]
	if !ok {
		t.Fatalf("payment %s not stored", id)
	}
	return payment
}

func (l *memoryLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

func containsStatus(items []PaymentStatus, status PaymentStatus) bool {
	for _, item := range items {
		if item == status {
			return true
		}
	}
	return false
}

type memoryTxKey struct{}

type memoryTx struct {
	mu        sync.Mutex
	ledger    *memoryLedger
	undo      []func()
	done      bool
	commitErr error
	manager   *memoryTxManager
}

func journal(ctx context.Context, undo func()) {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	if !ok || tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.undo = append(tx.undo, undo)
}

func (tx *memoryTx) Commit(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return fmt.Errorf("memory tx: already finished")
	}
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.done = true
	tx.undo = nil
	tx.manager.count(&tx.manager.committed)
	return nil
}

func (tx *memoryTx) Rollback(context.Context) error {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return nil
	}
	tx.done = true
	undo := tx.undo
	tx.undo = nil
	tx.mu.Unlock()

	tx.ledger.mu.Lock()
	for index := len(undo) - 1; index >= 0; index-- {
		undo[index]()
	}
	tx.ledger.mu.Unlock()
	tx.manager.count(&tx.manager.rolledBack)
	return nil
}

type memoryTxManager struct {
	mu         sync.Mutex
	ledger     *memoryLedger
	begun      int
	committed  int
	rolledBack int
	isolations []IsolationLevel
	// commitErrs are attached, in order, to the next begun transactions.
	commitErrs []error
}

func newMemoryTxManager(ledger *memoryLedger) *memoryTxManager {
	return &memoryTxManager{ledger: ledger}
}

func (m *memoryTxManager) Begin(ctx context.Context, opts TxOptions) (context.Context, Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun++
	m.isolations = append(m.isolations, opts.Isolation)
	tx := &memoryTx{ledger: m.ledger, manager: m}
	if len(m.commitErrs) > 0 {
		tx.commitErr = m.commitErrs[0]
		m.commitErrs = m.commitErrs[1:]
	}
	return context.WithValue(ctx, memoryTxKey{}, tx), tx, nil
}

func (m *memoryTxManager) count(target *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*target++
}

func (m *memoryTxManager) stats() (begun int, committed int, rolledBack int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begun, m.committed, m.rolledBack
}

type capturePublisher struct {
	mu     sync.Mutex
	events []PaymentTransitionedEvent
	err    error
}

func (p *capturePublisher) PublishTransition(_ context.Context, event PaymentTransitionedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) snapshot() []PaymentTransitionedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaymentTransitionedEvent(nil), p.events...)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now.UTC()}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testHarness struct {
	svc       *Service
	ledger    *memoryLedger
	tx        *memoryTxManager
	clock     *fixedClock
	publisher *capturePublisher
}

// fastRetryConfig keeps backoff short so retry tests stay quick.
func fastRetryConfig() Config {
	cfg := Config{}
	cfg.Transactions.Booking.BackoffBase = time.Millisecond
	cfg.Transactions.Booking.MaxBackoff = 2 * time.Millisecond
	cfg.Transactions.ConflictResolution.BackoffBase = time.Millisecond
	cfg.Transactions.ConflictResolution.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	ledger := newMemoryLedger()
	tx := newMemoryTxManager(ledger)
	clock := newFixedClock(testEpoch)
	publisher := &capturePublisher{}
	base := []Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithPaymentStore(ledger),
		WithReservationStore(ledger),
		WithRefundPolicyProvider(ledger),
		WithCatalogProvider(ledger),
		WithTransactionManager(tx),
		WithEventPublisher(publisher),
		WithClock(clock.Now),
	}
	svc, err := NewService(fastRetryConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testHarness{svc: svc, ledger: ledger, tx: tx, clock: clock, publisher: publisher}
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func float64Ptr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }
