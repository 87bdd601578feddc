// Package retry implements the retry/backoff and circuit-breaker policy
// shared by every tool invocation, plus the post-action verification
// engine that confirms a tool's claimed effect actually happened before
// reporting success.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"browsercore/internal/coreerr"
)

// Verifier inspects the browser state after an action to confirm its
// claimed effect took hold; it returns a descriptive error when it didn't.
type Verifier func(ctx context.Context) error

// Recoverer refreshes a session's perception/locator state after a
// Recoverable error (stale element refs, preconditions not yet met) so
// the next retry attempt has a fighting chance. It runs at most once per
// Do call, the "re-perceive, re-locate, then re-attempt" policy.
type Recoverer func(ctx context.Context) error

// Engine runs an operation with retry/backoff, one circuit breaker per
// tool name, and an optional post-action verification pass.
type Engine struct {
	log              *zap.Logger
	defaultRetries   int
	breakerThreshold uint32
	breakerCooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds a retry Engine.
func New(defaultRetries int, breakerThreshold uint32, breakerCooldown time.Duration, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:              log,
		defaultRetries:   defaultRetries,
		breakerThreshold: breakerThreshold,
		breakerCooldown:  breakerCooldown,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *Engine) breakerFor(tool string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[tool]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     e.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn("circuit breaker state change", zap.String("tool", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	e.breakers[tool] = b
	return b
}

// IsOpen reports whether tool's circuit breaker is currently open.
func (e *Engine) IsOpen(tool string) bool {
	e.mu.Lock()
	b, ok := e.breakers[tool]
	e.mu.Unlock()
	if !ok {
		return false
	}
	return b.State() == gobreaker.StateOpen
}

// Outcome captures one attempt's result for the caller's audit trail.
type Outcome struct {
	Attempts int
	Verified bool
	Err      error
}

// Do executes op through the named tool's circuit breaker with exponential
// backoff across up to maxRetries+1 attempts (maxRetries<0 uses the
// engine default). verify, when non-nil, runs after a successful op and
// a verification failure is itself retried. recover, when non-nil, runs
// once the first time op fails with a Kind.Recoverable error (e.g. a
// stale element ref) before the next retry attempt, giving a caller the
// chance to re-perceive and re-resolve; recover may be nil.
func (e *Engine) Do(ctx context.Context, tool string, maxRetries int, op func(ctx context.Context) error, verify Verifier, recover Recoverer) Outcome {
	if maxRetries < 0 {
		maxRetries = e.defaultRetries
	}
	breaker := e.breakerFor(tool)
	attempts := 0
	recovered := false

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 100 * time.Millisecond
	boff.Multiplier = 2
	boff.RandomizationFactor = 0.2
	boff.MaxInterval = 2 * time.Second

	action := func() (struct{}, error) {
		attempts++
		_, err := breaker.Execute(func() (interface{}, error) {
			if err := op(ctx); err != nil {
				return nil, err
			}
			if verify != nil {
				if err := verify(ctx); err != nil {
					return nil, coreerr.Wrap(coreerr.VerificationFailed, "post-action verification failed", err)
				}
			}
			return nil, nil
		})
		if err != nil {
			ce := coreerr.As(err)
			switch {
			case ce.Kind.Recoverable() && !recovered:
				recovered = true
				if recover != nil {
					if rerr := recover(ctx); rerr != nil {
						e.log.Warn("recovery attempt failed", zap.String("tool", tool), zap.Error(rerr))
					}
				}
				return struct{}{}, err
			case ce.Retryable:
				return struct{}{}, err
			default:
				return struct{}{}, backoff.Permanent(err)
			}
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, action,
		backoff.WithBackOff(boff),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)

	if err != nil {
		if breaker.State() == gobreaker.StateOpen {
			err = fmt.Errorf("%w (circuit open for %s)", err, tool)
		}
		return Outcome{Attempts: attempts, Verified: false, Err: err}
	}
	return Outcome{Attempts: attempts, Verified: verify != nil, Err: nil}
}
