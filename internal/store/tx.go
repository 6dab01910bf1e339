package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// WithTx runs fn inside an immediate-mode transaction so the write lock is
// taken up front and balance checks never race a stale read. Busy/locked
// conflicts are retried a bounded number of times; any other error rolls
// back and is returned as-is.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return wrapBusy(fmt.Errorf("begin tx: %w", err))
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return wrapBusy(err)
		}
		if err := tx.Commit(); err != nil {
			return wrapBusy(fmt.Errorf("commit tx: %w", err))
		}
		return nil
	})
}

// wrapBusy marks sqlite contention errors as retryable so retry.Do loops on
// them and surfaces everything else immediately.
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return retry.RetryableError(err)
	}
	return err
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure, used to map constraint hits onto domain errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
