// Package safego launches background goroutines that recover from panics.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with
// the task name instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer recoverTask(name)
		fn()
	}()
}

// GoWithTimeout runs fn in a new goroutine with a context detached from any
// request and cancelled after timeout.
func GoWithTimeout(name string, timeout time.Duration, fn func(ctx context.Context)) {
	go func() {
		defer recoverTask(name)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func recoverTask(name string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
	}
}
