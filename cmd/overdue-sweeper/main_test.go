package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
)

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadSettings(t *testing.T) {
	set, err := loadSettings(envLookup(map[string]string{
		"DATABASE_URL":     "postgres://payments@localhost/payments?sslmode=disable",
		"KAFKA_BROKERS":    "kafka-1:9092, ,kafka-2:9092",
		"SWEEP_INTERVAL":   "90s",
		"PAYMENTS_MIGRATE": "true",
	}))
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if set.Interval != 90*time.Second || !set.Migrate || set.Debug {
		t.Fatalf("unexpected settings %#v", set)
	}
	if len(set.KafkaBrokers) != 2 || set.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %#v", set.KafkaBrokers)
	}
	if set.KafkaClientID == "" {
		t.Fatalf("expected default kafka client id")
	}

	if _, err := loadSettings(envLookup(nil)); err == nil {
		t.Fatalf("expected missing database url error")
	}
	if _, err := loadSettings(envLookup(map[string]string{
		"DATABASE_URL":   "postgres://localhost/payments",
		"SWEEP_INTERVAL": "-1m",
	})); err == nil {
		t.Fatalf("expected invalid interval error")
	}
}

func TestEnvConfigLoader_BuildsTypedConfig(t *testing.T) {
	loader := envConfigLoader{lookup: envLookup(map[string]string{
		"PAYMENTS_CURRENCY":                   "EUR",
		"PAYMENTS_GRACE_PERIOD_HOURS":         "48",
		"PAYMENTS_DEPOSIT_DEFAULT_PERCENTAGE": "30",
		"PAYMENTS_SWEEP_BATCH_SIZE":           "50",
		"PAYMENTS_SWEEP_LOCK_TTL":             "2m",
		"PAYMENTS_POLICY_CACHE_TTL":           "30s",
	})}

	cfg, err := core.NewCfgxConfigProvider(loader).Load(context.Background(), core.DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Currency != "EUR" || cfg.GracePeriodHours != 48 {
		t.Fatalf("unexpected top-level config %#v", cfg)
	}
	if cfg.Deposit.DefaultPercentage != 30 {
		t.Fatalf("expected deposit percentage 30, got %v", cfg.Deposit.DefaultPercentage)
	}
	if cfg.Sweep.BatchSize != 50 || cfg.Sweep.LockTTL != 2*time.Minute {
		t.Fatalf("unexpected sweep config %#v", cfg.Sweep)
	}
	if cfg.PolicyCache.TTL != 30*time.Second {
		t.Fatalf("unexpected policy cache ttl %s", cfg.PolicyCache.TTL)
	}
	if cfg.ServiceName != core.DefaultConfig().ServiceName {
		t.Fatalf("expected unset keys to keep defaults")
	}
}

func TestEnvConfigLoader_RejectsMalformedValues(t *testing.T) {
	loader := envConfigLoader{lookup: envLookup(map[string]string{
		"PAYMENTS_SWEEP_BATCH_SIZE": "many",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil || !strings.Contains(err.Error(), "PAYMENTS_SWEEP_BATCH_SIZE") {
		t.Fatalf("expected parse error naming the variable, got %v", err)
	}
}

type stubSweeper struct {
	requests []core.SweepRequest
	result   core.SweepResult
	err      error
}

func (s *stubSweeper) SweepOverdue(_ context.Context, req core.SweepRequest) (core.SweepResult, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func TestSweepOnce_LogsOutcome(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		level string
	}{
		{name: "success", level: "INFO"},
		{name: "locked", err: fmt.Errorf("%w: overdue", core.ErrSweepLocked), level: "DEBUG"},
		{name: "failure", err: errors.New("database unavailable"), level: "ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, true)
			sweeper := &stubSweeper{result: core.SweepResult{Scanned: 3, Marked: 2}, err: tc.err}

			sweepOnce(context.Background(), sweeper, logger, 25)

			if len(sweeper.requests) != 1 || sweeper.requests[0].BatchSize != 25 {
				t.Fatalf("unexpected sweep requests %#v", sweeper.requests)
			}
			var record map[string]any
			if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if record["level"] != tc.level {
				t.Fatalf("expected %s log, got %#v", tc.level, record)
			}
			if tc.err == nil && record["marked"] != float64(2) {
				t.Fatalf("expected marked count in log, got %#v", record)
			}
		})
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweeper := &stubSweeper{}
	var buf bytes.Buffer

	loop(ctx, sweeper, newLogger(&buf, false), time.Hour, 10)

	if len(sweeper.requests) != 1 {
		t.Fatalf("expected one sweep before exit, got %d", len(sweeper.requests))
	}
}

func TestTransitionLogger_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	listener := transitionLogger{logger: newLogger(&buf, false).GetLogger("transitions")}
	err := listener.PublishTransition(context.Background(), core.PaymentTransitionedEvent{
		PaymentID: "pay_1",
		From:      core.PaymentStatusPending,
		To:        core.PaymentStatusDepositPaid,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), `"payment_id":"pay_1"`) || !strings.Contains(buf.String(), `"component":"transitions"`) {
		t.Fatalf("unexpected log output %s", buf.String())
	}
}
