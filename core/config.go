package core

import (
	"fmt"
	"strings"
	"time"
)

type DepositConfig struct {
	DefaultPercentage float64 `koanf:"default_percentage" mapstructure:"default_percentage"`
	MinAmount         int64   `koanf:"min_amount" mapstructure:"min_amount"`
	MaxAmount         int64   `koanf:"max_amount" mapstructure:"max_amount"`
}

type OverpaymentConfig struct {
	// WarningRatio is the fraction above the expected amount that triggers
	// an overpayment warning.
	WarningRatio float64 `koanf:"warning_ratio" mapstructure:"warning_ratio"`
	// Threshold is the absolute amount a reservation may be overpaid before
	// the advisory cross-payment check warns.
	Threshold int64 `koanf:"threshold" mapstructure:"threshold"`
}

type RefundPolicyConfig struct {
	Percentage      float64 `koanf:"percentage" mapstructure:"percentage"`
	TimeLimitHours  int     `koanf:"time_limit_hours" mapstructure:"time_limit_hours"`
	MaxRefundAmount int64   `koanf:"max_refund_amount" mapstructure:"max_refund_amount"`
	IsActive        bool    `koanf:"is_active" mapstructure:"is_active"`
}

// Policy converts the configured default into a RefundPolicy. Zero limits
// mean unlimited.
func (c RefundPolicyConfig) Policy() RefundPolicy {
	policy := RefundPolicy{
		Percentage: c.Percentage,
		IsActive:   c.IsActive,
	}
	if c.TimeLimitHours > 0 {
		hours := c.TimeLimitHours
		policy.TimeLimitHours = &hours
	}
	if c.MaxRefundAmount > 0 {
		limit := c.MaxRefundAmount
		policy.MaxRefundAmount = &limit
	}
	return policy
}

type TransactionProfileConfig struct {
	Isolation   string        `koanf:"isolation" mapstructure:"isolation"`
	MaxRetries  int           `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffBase time.Duration `koanf:"backoff_base" mapstructure:"backoff_base"`
	MaxBackoff  time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type TransactionsConfig struct {
	Booking            TransactionProfileConfig `koanf:"booking" mapstructure:"booking"`
	ConflictResolution TransactionProfileConfig `koanf:"conflict_resolution" mapstructure:"conflict_resolution"`
}

type SweepConfig struct {
	BatchSize int           `koanf:"batch_size" mapstructure:"batch_size"`
	LockKey   string        `koanf:"lock_key" mapstructure:"lock_key"`
	LockTTL   time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type PolicyCacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName         string             `koanf:"service_name" mapstructure:"service_name"`
	Currency            string             `koanf:"currency" mapstructure:"currency"`
	Deposit             DepositConfig      `koanf:"deposit" mapstructure:"deposit"`
	GracePeriodHours    int                `koanf:"grace_period_hours" mapstructure:"grace_period_hours"`
	MaxPaymentAmount    int64              `koanf:"max_payment_amount" mapstructure:"max_payment_amount"`
	Overpayment         OverpaymentConfig  `koanf:"overpayment" mapstructure:"overpayment"`
	DefaultRefundPolicy RefundPolicyConfig `koanf:"default_refund_policy" mapstructure:"default_refund_policy"`
	Transactions        TransactionsConfig `koanf:"transactions" mapstructure:"transactions"`
	Sweep               SweepConfig        `koanf:"sweep" mapstructure:"sweep"`
	PolicyCache         PolicyCacheConfig  `koanf:"policy_cache" mapstructure:"policy_cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "payments",
		Currency:    "KRW",
		Deposit: DepositConfig{
			DefaultPercentage: 25,
			MinAmount:         10000,
			MaxAmount:         100000,
		},
		GracePeriodHours: 72,
		MaxPaymentAmount: 100000000,
		Overpayment: OverpaymentConfig{
			WarningRatio: 0.10,
			Threshold:    0,
		},
		DefaultRefundPolicy: RefundPolicyConfig{
			Percentage: 100,
			IsActive:   true,
		},
		Transactions: TransactionsConfig{
			Booking: TransactionProfileConfig{
				Isolation:   string(IsolationSerializable),
				MaxRetries:  5,
				BackoffBase: 50 * time.Millisecond,
				MaxBackoff:  2 * time.Second,
				Timeout:     5 * time.Second,
			},
			ConflictResolution: TransactionProfileConfig{
				Isolation:   string(IsolationReadCommitted),
				MaxRetries:  3,
				BackoffBase: 50 * time.Millisecond,
				MaxBackoff:  time.Second,
				Timeout:     5 * time.Second,
			},
		},
		Sweep: SweepConfig{
			BatchSize: 100,
			LockKey:   "payments:overdue-sweep",
			LockTTL:   time.Minute,
		},
		PolicyCache: PolicyCacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Deposit.DefaultPercentage < 0 || c.Deposit.DefaultPercentage > 100 {
		return fmt.Errorf("core: deposit.default_percentage must be within 0-100")
	}
	if c.Deposit.MinAmount < 0 || c.Deposit.MaxAmount < 0 {
		return fmt.Errorf("core: deposit bounds must not be negative")
	}
	if c.Deposit.MaxAmount > 0 && c.Deposit.MinAmount > c.Deposit.MaxAmount {
		return fmt.Errorf("core: deposit.min_amount must not exceed deposit.max_amount")
	}
	if c.GracePeriodHours < 0 {
		return fmt.Errorf("core: grace_period_hours must not be negative")
	}
	if c.Overpayment.WarningRatio < 0 {
		return fmt.Errorf("core: overpayment.warning_ratio must not be negative")
	}
	if c.DefaultRefundPolicy.Percentage < 0 || c.DefaultRefundPolicy.Percentage > 100 {
		return fmt.Errorf("core: default_refund_policy.percentage must be within 0-100")
	}
	for name, profile := range map[string]TransactionProfileConfig{
		"booking":             c.Transactions.Booking,
		"conflict_resolution": c.Transactions.ConflictResolution,
	} {
		if profile.MaxRetries < 0 {
			return fmt.Errorf("core: transactions.%s.max_retries must not be negative", name)
		}
		if _, err := ParseIsolationLevel(profile.Isolation); err != nil {
			return fmt.Errorf("core: transactions.%s: %w", name, err)
		}
	}
	if c.Sweep.BatchSize < 0 {
		return fmt.Errorf("core: sweep.batch_size must not be negative")
	}
	return nil
}

func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodHours) * time.Hour
}

func ParseIsolationLevel(value string) (IsolationLevel, error) {
	switch level := IsolationLevel(strings.TrimSpace(strings.ToLower(value))); level {
	case IsolationDefault, IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable:
		return level, nil
	default:
		return "", fmt.Errorf("invalid isolation level %q", value)
	}
}
