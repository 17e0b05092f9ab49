package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/metrics"
)

// PanicError is a recovered handler panic.
type PanicError struct {
	Event string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler for %q panicked: %v", e.Event, e.Value)
}

// Recover turns a handler panic into a *PanicError.
func Recover() Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, ev Event) (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = &PanicError{Event: name, Value: p, Stack: debug.Stack()}
				}
			}()
			return next(ctx, ev)
		}
	}
}

// Observe records handler metrics and logs failures.
func Observe(logger *logging.Logger) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, ev Event) error {
			start := time.Now()
			err := next(ctx, ev)
			metrics.HandlerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

			result := "ok"
			if err != nil {
				result = "error"
				fields := []zap.Field{zap.String("event", name), zap.Int64("seq", ev.Seq), zap.Error(err)}
				var pe *PanicError
				if errors.As(err, &pe) {
					result = "panic"
					fields = append(fields, zap.ByteString("stack", pe.Stack))
				}
				logger.Error(ctx, "handler failed", fields...)
			}
			metrics.HandlerInvocations.WithLabelValues(name, result).Inc()
			return err
		}
	}
}

// Filter skips events for which keep returns false.
func Filter(keep func(Event) bool) Middleware {
	return func(_ string, next Handler) Handler {
		return func(ctx context.Context, ev Event) error {
			if !keep(ev) {
				return nil
			}
			return next(ctx, ev)
		}
	}
}
