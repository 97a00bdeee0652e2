package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	maxBusyRetries = 3
	baseBusyDelay  = 50 * time.Millisecond
)

// isConflictError reports SQLITE_BUSY and "database is locked" failures,
// which are worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, retrying conflict errors with exponential backoff
// (50ms, 100ms). Other errors are returned immediately.
func withBusyRetry(ctx context.Context, name, key string, op func() error) error {
	var err error
	for i := 0; i < maxBusyRetries; i++ {
		err = op()
		if err == nil || !isConflictError(err) {
			return err
		}
		if i == maxBusyRetries-1 {
			break
		}
		delay := baseBusyDelay * time.Duration(1<<i)
		slog.Debug("store operation hit a locked database, retrying",
			"op", name,
			"key", key,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
