package scanner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/imagegate/internal/report"
)

// RetryPolicy bounds how often a transient scan failure is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// jitter spreads each wait over [0.5, 1.5] times the current interval.
const jitter = 0.5

// Retrying wraps a Scanner with jittered exponential backoff. Parse failures and context
// cancellation are returned immediately.
type Retrying struct {
	Next   Scanner
	Policy RetryPolicy
	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// WithRetry returns next unchanged when the policy allows a single attempt.
func WithRetry(next Scanner, policy RetryPolicy) Scanner {
	if policy.Attempts <= 1 {
		return next
	}
	return &Retrying{Next: next, Policy: policy}
}

// Scan implements Scanner.
func (r *Retrying) Scan(ctx context.Context, target string) (*report.ScanReport, error) {
	var (
		rep     *report.ScanReport
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		rep, err = r.Next.Scan(ctx, target)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if r.OnRetry != nil {
			r.OnRetry(attempt, wait, err)
		}
	}

	if err := backoff.RetryNotify(op, r.schedule(ctx), notify); err != nil {
		return nil, err
	}
	return rep, nil
}

// schedule builds the bounded, cancellable backoff for one Scan call.
func (r *Retrying) schedule(ctx context.Context) backoff.BackOff {
	attempts := r.Policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if r.Policy.BaseDelay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = r.Policy.BaseDelay
		exp.RandomizationFactor = jitter
		exp.Multiplier = 2
		exp.MaxElapsedTime = 0
		if r.Policy.MaxDelay > 0 {
			exp.MaxInterval = r.Policy.MaxDelay
		}
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
