// Package middleware wraps update handlers with request-scoped logging,
// metrics and panic recovery.
package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/pkg/logging"
)

// Update identifies an inbound command or callback.
type Update struct {
	Command string
	GroupID int64
	UserID  int64
}

// Handler handles one update and returns its metrics outcome
// (metrics.OutcomeOK, OutcomeRejected or OutcomeError).
type Handler func(ctx context.Context) string

// Logging runs next with a logger carrying a fresh request_id and the
// update's identifiers. It logs the outcome and duration of every update.
// A panic in next is recovered and logged, then onPanic is called so the
// caller can tell the user; the process keeps serving.
func Logging(ctx context.Context, m *metrics.Metrics, u Update, next Handler, onPanic func(ctx context.Context)) {
	logger := logging.FromContext(ctx).With(
		"request_id", uuid.NewString(),
		"command", u.Command,
		"group_id", u.GroupID,
		"user_id", u.UserID,
	)
	ctx = logging.WithLogger(ctx, logger)
	start := time.Now()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		m.ObservePanic()
		m.ObserveCommand(u.Command, metrics.OutcomeError, time.Since(start))
		logger.Error("Handler panic",
			"panic", r,
			"stack", string(debug.Stack()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if onPanic != nil {
			onPanic(ctx)
		}
	}()

	outcome := next(ctx)

	elapsed := time.Since(start)
	m.ObserveCommand(u.Command, outcome, elapsed)

	level := slog.LevelInfo
	if outcome == metrics.OutcomeError {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "Command handled",
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
	)
}
