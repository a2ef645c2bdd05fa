package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type reservationRecord struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID            string    `bun:"id,pk"`
	ShopID        string    `bun:"shop_id,notnull"`
	TotalPrice    int64     `bun:"total_price,notnull"`
	DepositAmount int64     `bun:"deposit_amount,notnull"`
	Currency      string    `bun:"currency,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentRecord struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID            string         `bun:"id,pk"`
	ReservationID string         `bun:"reservation_id,notnull"`
	Amount        int64          `bun:"amount,notnull"`
	Currency      string         `bun:"currency,notnull"`
	Stage         string         `bun:"stage,notnull"`
	Status        string         `bun:"status,notnull"`
	DueDate       *time.Time     `bun:"due_date,nullzero"`
	RefundAmount  int64          `bun:"refund_amount,notnull"`
	Version       int64          `bun:"version,notnull"`
	PaidAt        *time.Time     `bun:"paid_at,nullzero"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type refundPolicyRecord struct {
	bun.BaseModel `bun:"table:refund_policies,alias:rp"`

	ID              string    `bun:"id,pk"`
	ShopID          string    `bun:"shop_id,notnull"`
	Percentage      float64   `bun:"percentage,notnull"`
	TimeLimitHours  *int      `bun:"time_limit_hours"`
	MaxRefundAmount *int64    `bun:"max_refund_amount"`
	IsActive        bool      `bun:"is_active,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type catalogServiceRecord struct {
	bun.BaseModel `bun:"table:catalog_services,alias:cs"`

	ID                string    `bun:"id,pk"`
	ShopID            string    `bun:"shop_id,notnull"`
	Name              string    `bun:"name,notnull"`
	UnitPrice         int64     `bun:"unit_price,notnull"`
	DepositAmount     *int64    `bun:"deposit_amount"`
	DepositPercentage *float64  `bun:"deposit_percentage"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
