package tts

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxkit/voxkit/logger"
	"github.com/voxkit/voxkit/metrics/prometheus"
)

// Default retry policy values.
const (
	DefaultMaxAttempts = 10
	DefaultCallTimeout = 30 * time.Second
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// jitterFraction is the +-20% jitter applied to backoff delays to avoid
// thundering-herd retries against a single vendor.
const jitterFraction = 0.20

// jitterPrecision is the granularity for crypto/rand jitter generation.
const jitterPrecision = 1000

// jitterHalfPrecision normalizes jitter output to the range [-1, 1].
const jitterHalfPrecision = jitterPrecision / 2

// Backoff selects the delay shape between retry attempts.
type Backoff int

// Backoff shapes.
const (
	// BackoffExponential doubles the delay each attempt: base * 2^(n-1).
	BackoffExponential Backoff = iota

	// BackoffFixed waits the base delay between every attempt.
	BackoffFixed
)

// RetryPolicy bounds the resilience engine. It is configuration, not
// state: every Execute call starts a fresh attempt counter.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, always >= 1.
	MaxAttempts int

	// Timeout is enforced per individual attempt.
	Timeout time.Duration

	// Shape selects fixed or exponential backoff.
	Shape Backoff

	// BaseDelay is the first retry delay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Jitter randomizes each delay by up to +-20% when set.
	Jitter bool
}

// DefaultRetryPolicy returns the engine defaults: 10 attempts, 30s per-call
// timeout, jittered exponential backoff from 1s capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultCallTimeout,
		Shape:       BackoffExponential,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      true,
	}
}

// withDefaults fills zero fields; MaxAttempts is clamped to at least 1.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultCallTimeout
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// delay computes the backoff before retry attempt+1, where attempt is the
// 1-based attempt that just failed.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if p.Shape == BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= p.MaxDelay {
				d = p.MaxDelay
				break
			}
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = jitterDelay(d)
	}
	return d
}

// jitterDelay applies +-20% jitter using crypto/rand. Falls back to the
// unjittered delay if randomness is unavailable.
func jitterDelay(d time.Duration) time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
	if err != nil {
		return d
	}
	// Normalize to [-1, 1), then scale by the jitter fraction.
	frac := float64(n.Int64()-jitterHalfPrecision) / jitterHalfPrecision
	jittered := time.Duration(float64(d) * (1 + jitterFraction*frac))
	if jittered <= 0 {
		return d
	}
	return jittered
}

var tracer = otel.Tracer("github.com/voxkit/voxkit/tts")

// Execute runs one adapter operation under the resilience policy: each
// attempt gets its own deadline, failures are normalized, retryable kinds
// are retried with backoff until the attempt budget is spent, and
// non-retryable kinds return immediately. KindInternal is retried at most
// once. The returned error is always a canonical *Error.
func Execute[T any](
	ctx context.Context, provider, operation string, policy RetryPolicy, op func(context.Context) (T, error),
) (T, error) {
	var zero T
	policy = policy.withDefaults()

	ctx, span := tracer.Start(ctx, "tts."+operation,
		trace.WithAttributes(
			attribute.String("tts.provider", provider),
			attribute.Int("tts.max_attempts", policy.MaxAttempts),
		))
	defer span.End()

	var lastErr *Error
	internalRetries := 0

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			span.SetAttributes(attribute.Int("tts.attempts", attempt-1))
			return zero, Normalize(provider, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		result, err := op(attemptCtx)
		cancel()

		prometheus.RecordAttempt(provider, operation, err == nil)

		if err == nil {
			span.SetAttributes(attribute.Int("tts.attempts", attempt))
			return result, nil
		}

		lastErr = Normalize(provider, err)
		logger.Debug("adapter call failed",
			"provider", provider,
			"operation", operation,
			"attempt", attempt,
			"kind", lastErr.Kind.String(),
			"error", lastErr.Message,
		)

		retryable := lastErr.Kind.Retryable()
		if lastErr.Kind == KindInternal && internalRetries == 0 {
			retryable = true
			internalRetries++
		}

		if !retryable || attempt == policy.MaxAttempts {
			span.RecordError(lastErr)
			span.SetAttributes(
				attribute.Int("tts.attempts", attempt),
				attribute.String("tts.error_kind", lastErr.Kind.String()),
			)
			if retryable {
				prometheus.RecordRetryExhausted(provider, operation)
			}
			return zero, lastErr
		}

		select {
		case <-ctx.Done():
			span.SetAttributes(attribute.Int("tts.attempts", attempt))
			return zero, Normalize(provider, ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}

	// Unreachable: the loop always returns. Kept for the compiler.
	return zero, lastErr
}
