package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// settings holds the process wiring read from the environment. Engine
// configuration goes through envConfigLoader instead.
type settings struct {
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaClientID string
	Interval      time.Duration
	Migrate       bool
	Debug         bool
}

func loadSettings(lookup func(string) (string, bool)) (settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	out := settings{
		DatabaseURL:   get("DATABASE_URL"),
		RedisURL:      get("REDIS_URL"),
		KafkaTopic:    get("KAFKA_TOPIC"),
		KafkaClientID: get("KAFKA_CLIENT_ID"),
		Interval:      5 * time.Minute,
	}
	if out.DatabaseURL == "" {
		return settings{}, fmt.Errorf("overdue-sweeper: DATABASE_URL is required")
	}
	if out.KafkaClientID == "" {
		out.KafkaClientID = "go-payments-overdue-sweeper"
	}
	for _, broker := range strings.Split(get("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out.KafkaBrokers = append(out.KafkaBrokers, broker)
		}
	}
	if raw := get("SWEEP_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return settings{}, fmt.Errorf("overdue-sweeper: parse SWEEP_INTERVAL: %w", err)
		}
		if interval <= 0 {
			return settings{}, fmt.Errorf("overdue-sweeper: SWEEP_INTERVAL must be positive")
		}
		out.Interval = interval
	}
	var err error
	if out.Migrate, err = parseBool(get("PAYMENTS_MIGRATE")); err != nil {
		return settings{}, fmt.Errorf("overdue-sweeper: parse PAYMENTS_MIGRATE: %w", err)
	}
	if out.Debug, err = parseBool(get("PAYMENTS_DEBUG")); err != nil {
		return settings{}, fmt.Errorf("overdue-sweeper: parse PAYMENTS_DEBUG: %w", err)
	}
	return out, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

type envEntry struct {
	path  []string
	parse func(string) (any, error)
}

// envConfigKeys maps PAYMENTS_* variables onto config paths.
var envConfigKeys = map[string]envEntry{
	"PAYMENTS_SERVICE_NAME":               {path: []string{"service_name"}, parse: parseString},
	"PAYMENTS_CURRENCY":                   {path: []string{"currency"}, parse: parseString},
	"PAYMENTS_GRACE_PERIOD_HOURS":         {path: []string{"grace_period_hours"}, parse: parseInt},
	"PAYMENTS_MAX_PAYMENT_AMOUNT":         {path: []string{"max_payment_amount"}, parse: parseInt64},
	"PAYMENTS_DEPOSIT_DEFAULT_PERCENTAGE": {path: []string{"deposit", "default_percentage"}, parse: parseFloat},
	"PAYMENTS_DEPOSIT_MIN_AMOUNT":         {path: []string{"deposit", "min_amount"}, parse: parseInt64},
	"PAYMENTS_DEPOSIT_MAX_AMOUNT":         {path: []string{"deposit", "max_amount"}, parse: parseInt64},
	"PAYMENTS_SWEEP_BATCH_SIZE":           {path: []string{"sweep", "batch_size"}, parse: parseInt},
	"PAYMENTS_SWEEP_LOCK_KEY":             {path: []string{"sweep", "lock_key"}, parse: parseString},
	"PAYMENTS_SWEEP_LOCK_TTL":             {path: []string{"sweep", "lock_ttl"}, parse: parseDuration},
	"PAYMENTS_POLICY_CACHE_TTL":           {path: []string{"policy_cache", "ttl"}, parse: parseDuration},
}

// envConfigLoader feeds PAYMENTS_* variables to the cfgx config provider.
type envConfigLoader struct {
	lookup func(string) (string, bool)
}

func (l envConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for name, entry := range envConfigKeys {
		value, ok := lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := entry.parse(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("overdue-sweeper: parse %s: %w", name, err)
		}
		section := raw
		for _, key := range entry.path[:len(entry.path)-1] {
			next, ok := section[key].(map[string]any)
			if !ok {
				next = map[string]any{}
				section[key] = next
			}
			section = next
		}
		section[entry.path[len(entry.path)-1]] = parsed
	}
	return raw, nil
}

func parseString(raw string) (any, error) { return raw, nil }

func parseInt(raw string) (any, error) { return strconv.Atoi(raw) }

func parseInt64(raw string) (any, error) { return strconv.ParseInt(raw, 10, 64) }

func parseFloat(raw string) (any, error) { return strconv.ParseFloat(raw, 64) }

func parseDuration(raw string) (any, error) { return time.ParseDuration(raw) }
