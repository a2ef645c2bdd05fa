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

type ReservationStore struct {
	db *bun.DB
}

func NewReservationStore(db *bun.DB) (*ReservationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ReservationStore{db: db}, nil
}

func (s *ReservationStore) GetReservation(ctx context.Context, id string) (core.Reservation, error) {
	if s == nil || s.db == nil {
		return core.Reservation{}, fmt.Errorf("sqlstore: reservation store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &reservationRecord{}
	err := conn(ctx, s.db).NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Reservation{}, fmt.Errorf("%w: id %q", core.ErrReservationNotFound, id)
		}
		return core.Reservation{}, classifyDriverError("get reservation", err)
	}
	return record.toDomain(), nil
}

func (s *ReservationStore) InsertReservation(ctx context.Context, reservation core.Reservation) (core.Reservation, error) {
	if s == nil || s.db == nil {
		return core.Reservation{}, fmt.Errorf("sqlstore: reservation store is not configured")
	}
	if err := reservation.Validate(); err != nil {
		return core.Reservation{}, err
	}
	record := newReservationRecord(reservation, time.Now().UTC())
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if _, err := conn(ctx, s.db).NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Reservation{}, classifyDriverError("insert reservation", err)
	}
	return record.toDomain(), nil
}
