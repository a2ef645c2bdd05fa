package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	ProfileBooking            = "booking"
	ProfileConflictResolution = "conflict_resolution"

	defaultBackoffBase = 50 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

type TransactionProfile struct {
	Name        string
	Options     TxOptions
	MaxRetries  int
	BackoffBase time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

func ProfileFromConfig(name string, cfg TransactionProfileConfig) TransactionProfile {
	isolation, err := ParseIsolationLevel(cfg.Isolation)
	if err != nil {
		isolation = IsolationSerializable
	}
	return TransactionProfile{
		Name:        name,
		Options:     TxOptions{Isolation: isolation},
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		MaxBackoff:  cfg.MaxBackoff,
		Timeout:     cfg.Timeout,
	}
}

// BookingProfile runs at serializable isolation with five retries.
func BookingProfile(cfg Config) TransactionProfile {
	return ProfileFromConfig(ProfileBooking, cfg.Transactions.Booking)
}

// ConflictResolutionProfile runs at read committed isolation with three retries.
func ConflictResolutionProfile(cfg Config) TransactionProfile {
	return ProfileFromConfig(ProfileConflictResolution, cfg.Transactions.ConflictResolution)
}

// NextDelay returns BackoffBase * 2^attempt bounded by MaxBackoff.
func (p TransactionProfile) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return min(delay, limit)
}

type UnitOfWork func(ctx context.Context) error

// Participant is one resource in a two-phase unit. Prepare runs inside a
// transaction begun on Manager and must not commit.
type Participant struct {
	Name    string
	Manager TransactionManager
	Prepare UnitOfWork
}

type TransactionCoordinator struct {
	manager TransactionManager
	logger  Logger
	wait    func(ctx context.Context, delay time.Duration) error
}

func NewTransactionCoordinator(manager TransactionManager, logger Logger) *TransactionCoordinator {
	return &TransactionCoordinator{
		manager: manager,
		logger:  glog.Ensure(logger),
		wait:    waitWithContext,
	}
}

// RunInTransaction executes unit inside a transaction and retries transient
// failures with exponential backoff. Version conflicts and validation errors
// are returned after the first attempt.
func (c *TransactionCoordinator) RunInTransaction(ctx context.Context, profile TransactionProfile, unit UnitOfWork) error {
	if c == nil || c.manager == nil {
		return fmt.Errorf("core: transaction manager is required")
	}
	if unit == nil {
		return fmt.Errorf("core: unit of work is required")
	}
	return c.retry(ctx, profile, func() error {
		return c.runOnce(ctx, profile, unit)
	})
}

// RunInTransactionResult is RunInTransaction for units that produce a value.
func RunInTransactionResult[T any](
	ctx context.Context,
	c *TransactionCoordinator,
	profile TransactionProfile,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	err := c.RunInTransaction(ctx, profile, func(txCtx context.Context) error {
		value, err := fn(txCtx)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// RunTwoPhase begins one transaction per participant, runs every prepare and
// commits only when all prepares succeed. A failed prepare rolls back every
// begun participant. A failed commit rolls back the participants not yet
// committed and reports the committed ones on the CoordinationError.
func (c *TransactionCoordinator) RunTwoPhase(ctx context.Context, profile TransactionProfile, participants []Participant) error {
	if c == nil {
		return fmt.Errorf("core: transaction coordinator is nil")
	}
	if len(participants) == 0 {
		return fmt.Errorf("core: at least one participant is required")
	}
	seen := make(map[string]struct{}, len(participants))
	for index, participant := range participants {
		name := strings.TrimSpace(participant.Name)
		if name == "" {
			return fmt.Errorf("core: participant %d name is required", index)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("core: duplicate participant %q", name)
		}
		seen[name] = struct{}{}
		if participant.Manager == nil || participant.Prepare == nil {
			return fmt.Errorf("core: participant %q requires a manager and a prepare step", name)
		}
	}
	return c.retry(ctx, profile, func() error {
		return c.twoPhaseOnce(ctx, profile, participants)
	})
}

func (c *TransactionCoordinator) retry(ctx context.Context, profile TransactionProfile, attemptFn func() error) error {
	for attempt := 0; ; attempt++ {
		err := attemptFn()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("core: %s transaction aborted: %w", profile.Name, errors.Join(ctxErr, err))
		}
		if !retryableAttempt(err) {
			return err
		}
		if attempt >= profile.MaxRetries {
			return fmt.Errorf("core: %s transaction failed after %d attempts: %w", profile.Name, attempt+1, asTransient(err))
		}
		delay := profile.NextDelay(attempt)
		c.logger.Warn("transaction attempt failed, retrying",
			"profile", profile.Name,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		if waitErr := c.wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("core: %s transaction aborted during backoff: %w", profile.Name, errors.Join(waitErr, err))
		}
	}
}

func retryableAttempt(err error) bool {
	var coordErr *CoordinationError
	if errors.As(err, &coordErr) {
		if coordErr.Heuristic() {
			return false
		}
		return classifyTransient(coordErr.Err) != nil
	}
	return classifyTransient(err) != nil
}

// asTransient attaches the transient classification to err so callers can
// still tell an exhausted retry from a terminal failure.
func asTransient(err error) error {
	var transientErr *TransientError
	var coordErr *CoordinationError
	if errors.As(err, &transientErr) || errors.As(err, &coordErr) {
		return err
	}
	if classified := classifyTransient(err); classified != nil {
		return classified
	}
	return err
}

func (c *TransactionCoordinator) runOnce(ctx context.Context, profile TransactionProfile, unit UnitOfWork) (err error) {
	unitCtx, cancel := withUnitTimeout(ctx, profile.Timeout)
	defer cancel()

	txCtx, tx, err := c.manager.Begin(unitCtx, profile.Options)
	if err != nil {
		return fmt.Errorf("core: begin transaction: %w", err)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			c.rollback(ctx, profile, tx)
			panic(recovered)
		}
	}()

	err = unit(txCtx)
	if err == nil {
		err = unitDeadlineError(ctx, unitCtx)
	}
	if err != nil {
		c.rollback(ctx, profile, tx)
		return timeoutAsTransient(ctx, unitCtx, err)
	}
	if err := tx.Commit(unitCtx); err != nil {
		c.rollback(ctx, profile, tx)
		return timeoutAsTransient(ctx, unitCtx, fmt.Errorf("core: commit transaction: %w", err))
	}
	return nil
}

type preparedParticipant struct {
	name string
	tx   Transaction
}

func (c *TransactionCoordinator) twoPhaseOnce(ctx context.Context, profile TransactionProfile, participants []Participant) error {
	unitCtx, cancel := withUnitTimeout(ctx, profile.Timeout)
	defer cancel()

	prepared := make([]preparedParticipant, 0, len(participants))
	abort := func(failed string, cause error) error {
		rolledBack := c.rollbackAll(ctx, profile, prepared)
		return &CoordinationError{
			Phase:      "prepare",
			Failed:     failed,
			RolledBack: rolledBack,
			Err:        timeoutAsTransient(ctx, unitCtx, cause),
		}
	}

	for _, participant := range participants {
		name := strings.TrimSpace(participant.Name)
		txCtx, tx, err := participant.Manager.Begin(unitCtx, profile.Options)
		if err != nil {
			return abort(name, fmt.Errorf("begin: %w", err))
		}
		prepared = append(prepared, preparedParticipant{name: name, tx: tx})
		if err := participant.Prepare(txCtx); err != nil {
			return abort(name, err)
		}
	}
	if err := unitDeadlineError(ctx, unitCtx); err != nil {
		return abort("", err)
	}

	committed := make([]string, 0, len(prepared))
	for index, item := range prepared {
		if err := item.tx.Commit(unitCtx); err != nil {
			rolledBack := c.rollbackAll(ctx, profile, prepared[index:])
			coordErr := &CoordinationError{
				Phase:      "commit",
				Failed:     item.name,
				Committed:  committed,
				RolledBack: rolledBack,
				Err:        err,
			}
			if coordErr.Heuristic() {
				c.logger.Error("two-phase commit left a partial outcome",
					"profile", profile.Name,
					"failed", item.name,
					"committed", strings.Join(committed, ","),
				)
			}
			return coordErr
		}
		committed = append(committed, item.name)
	}
	return nil
}

func (c *TransactionCoordinator) rollback(ctx context.Context, profile TransactionProfile, tx Transaction) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("transaction rollback failed", "profile", profile.Name, "error", err.Error())
	}
}

func (c *TransactionCoordinator) rollbackAll(ctx context.Context, profile TransactionProfile, items []preparedParticipant) []string {
	names := make([]string, 0, len(items))
	for index := len(items) - 1; index >= 0; index-- {
		c.rollback(ctx, profile, items[index].tx)
		names = append(names, items[index].name)
	}
	return names
}

func withUnitTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// unitDeadlineError reports a unit that outlived its own deadline while the
// caller context is still live.
func unitDeadlineError(parent context.Context, unitCtx context.Context) error {
	if parent.Err() == nil && errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
		return NewTransientError(TransientTimeout, "unit of work", unitCtx.Err())
	}
	return nil
}

func timeoutAsTransient(parent context.Context, unitCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) || IsConflict(err) || IsValidation(err) {
		return err
	}
	if parent.Err() == nil && errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
		return NewTransientError(TransientTimeout, "unit of work", err)
	}
	return err
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
