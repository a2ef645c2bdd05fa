package sqlstore

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// classifyDriverError wraps retryable driver failures in core.TransientError
// and returns every other error unchanged.
func classifyDriverError(op string, err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := transientKind(err); ok {
		return core.NewTransientError(kind, op, err)
	}
	return err
}

func transientKind(err error) (core.TransientKind, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40P01":
			return core.TransientDeadlock, true
		case pqErr.Code == "40001", pqErr.Code == "55P03":
			return core.TransientTemporary, true
		case pqErr.Code == "57014":
			return core.TransientTimeout, true
		case pqErr.Code == "53300", pqErr.Code.Class() == "08":
			return core.TransientConnection, true
		}
		return "", false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy:
			return core.TransientTemporary, true
		case sqlite3.ErrLocked:
			return core.TransientDeadlock, true
		}
		return "", false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return core.TransientConnection, true
	}
	return "", false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
