package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PaymentStore struct {
	db           *bun.DB
	reservations *ReservationStore
}

func NewPaymentStore(db *bun.DB, reservations *ReservationStore) (*PaymentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &PaymentStore{db: db, reservations: reservations}, nil
}

func (s *PaymentStore) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	record, err := findPayment(ctx, conn(ctx, s.db), strings.TrimSpace(id))
	if err != nil {
		return core.Payment{}, err
	}
	return record.toDomain(), nil
}

func (s *PaymentStore) InsertPayment(ctx context.Context, payment core.Payment) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	if err := payment.Validate(); err != nil {
		return core.Payment{}, err
	}
	record := newPaymentRecord(payment, time.Now().UTC())
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if _, err := conn(ctx, s.db).NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Payment{}, classifyDriverError("insert payment", err)
	}
	return record.toDomain(), nil
}

// ConditionalUpdatePayment writes patch only while the row still holds
// expectedVersion. A zero row count is a version conflict unless the row is
// gone.
func (s *PaymentStore) ConditionalUpdatePayment(
	ctx context.Context,
	id string,
	expectedVersion int64,
	patch core.PaymentPatch,
) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Payment{}, fmt.Errorf("sqlstore: payment id is required")
	}
	updatedAt := patch.UpdatedAt.UTC()
	if patch.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	db := conn(ctx, s.db)
	query := db.NewUpdate().
		Model((*paymentRecord)(nil)).
		Set("status = ?", string(patch.Status)).
		Set("version = version + 1").
		Set("updated_at = ?", updatedAt)
	switch {
	case patch.DueDate != nil:
		query = query.Set("due_date = ?", patch.DueDate.UTC())
	case patch.ClearDueDate:
		query = query.Set("due_date = NULL")
	}
	if patch.PaidAt != nil {
		query = query.Set("paid_at = ?", patch.PaidAt.UTC())
	}
	if patch.RefundAmount != nil {
		query = query.Set("refund_amount = ?", *patch.RefundAmount)
	}
	result, err := query.
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Payment{}, classifyDriverError("update payment", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Payment{}, classifyDriverError("update payment", err)
	}

	record, err := findPayment(ctx, db, id)
	if err != nil {
		return core.Payment{}, err
	}
	if affected == 0 {
		return core.Payment{}, fmt.Errorf("%w: payment %s expected version %d, found %d",
			core.ErrVersionConflict, id, expectedVersion, record.Version)
	}
	return record.toDomain(), nil
}

func (s *PaymentStore) ListPayments(ctx context.Context, filter core.PaymentFilter) ([]core.Payment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: payment store is not configured")
	}
	records := []*paymentRecord{}
	query := conn(ctx, s.db).NewSelect().Model(&records)
	if reservationID := strings.TrimSpace(filter.ReservationID); reservationID != "" {
		query = query.Where("?TableAlias.reservation_id = ?", reservationID)
	}
	if filter.Stage != "" {
		query = query.Where("?TableAlias.stage = ?", string(filter.Stage))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("?TableAlias.status IN (?)", bun.In(statuses))
	}
	if filter.DueBefore != nil {
		query = query.
			Where("?TableAlias.due_date IS NOT NULL").
			Where("?TableAlias.due_date < ?", filter.DueBefore.UTC())
	}
	query = query.OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, classifyDriverError("list payments", err)
	}

	out := make([]core.Payment, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// GetReservationPaymentSummary sums the collected rows of a reservation.
func (s *PaymentStore) GetReservationPaymentSummary(ctx context.Context, reservationID string) (core.ReservationPaymentSummary, error) {
	if s == nil || s.db == nil || s.reservations == nil {
		return core.ReservationPaymentSummary{}, fmt.Errorf("sqlstore: payment store is not configured")
	}
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return core.ReservationPaymentSummary{}, err
	}
	payments, err := s.ListPayments(ctx, core.PaymentFilter{ReservationID: reservation.ID})
	if err != nil {
		return core.ReservationPaymentSummary{}, err
	}
	summary := core.ReservationPaymentSummary{
		ReservationID: reservation.ID,
		TotalPrice:    reservation.TotalPrice,
		PaymentCount:  len(payments),
	}
	for _, payment := range payments {
		if !core.IsCollected(payment.Stage, payment.Status) {
			continue
		}
		summary.Collected += payment.Amount
		summary.Refunded += payment.RefundAmount
	}
	return summary, nil
}

func findPayment(ctx context.Context, db bun.IDB, id string) (*paymentRecord, error) {
	record := &paymentRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %q", core.ErrPaymentNotFound, id)
		}
		return nil, classifyDriverError("get payment", err)
	}
	return record, nil
}
