// Package ratelimit caps how often scripts may call into each bridge
// namespace. Counters are shared across executions.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/scriptguard/internal/bridge"
)

// ErrExceeded is returned for calls over a namespace limit.
var ErrExceeded = errors.New("rate limit exceeded")

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded  bool
	Namespace string
	Current   int
	Limit     int
	Reason    string
}

// Limiter enforces a Config.
type Limiter struct {
	cfg   Config
	now   func() time.Time
	state *tracker
}

// New creates a Limiter. A nil now uses time.Now.
func New(cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{cfg: cfg, now: now, state: newTracker()}
}

// Check records a call into ns and reports whether it is over the limit.
// Calls over the limit are not counted.
func (l *Limiter) Check(ns string) CheckResult {
	lim := l.cfg.lookup(ns)
	if !lim.active() {
		return CheckResult{Namespace: ns}
	}
	count, ok := l.state.take(ns, lim, l.now())
	if ok {
		return CheckResult{Namespace: ns, Current: count + 1, Limit: lim.MaxRequests}
	}
	return CheckResult{
		Exceeded:  true,
		Namespace: ns,
		Current:   count,
		Limit:     lim.MaxRequests,
		Reason: fmt.Sprintf("%s: %d/%d calls in %s window",
			ns, count, lim.MaxRequests, lim.Window),
	}
}

// Wrap returns an executor that rejects calls over the limit and forwards
// the rest to next.
func (l *Limiter) Wrap(next bridge.Executor) bridge.Executor {
	return func(ctx context.Context, call bridge.CommandCall) (any, error) {
		ns, _, _ := strings.Cut(call.Command, ".")
		if r := l.Check(ns); r.Exceeded {
			return nil, fmt.Errorf("%w: %s", ErrExceeded, r.Reason)
		}
		return next(ctx, call)
	}
}
