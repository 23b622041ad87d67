// Package ratelimit implements a fixed-window request limiter keyed by
// route and caller identity. The counter store is injected so a
// process-local map and a shared Redis instance are interchangeable.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrLimitExceeded is returned by Allow when the caller's window is
// exhausted.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Store counts requests per key within a fixed window. Incr resets the
// count to 1 when the key's window has elapsed, otherwise increments,
// and returns the updated count along with the time remaining in the
// current window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, remaining time.Duration, err error)
}

// Rule is the limit for one route class.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultRule is applied to routes without an explicit rule: generous
// enough for dashboard polling.
var DefaultRule = Rule{MaxRequests: 120, Window: time.Minute}

type Limiter struct {
	store       Store
	rules       map[string]Rule
	defaultRule Rule
}

func NewLimiter(store Store, rules map[string]Rule) *Limiter {
	return &Limiter{
		store:       store,
		rules:       rules,
		defaultRule: DefaultRule,
	}
}

// RuleFor returns the configured rule for a route, or the default.
func (l *Limiter) RuleFor(route string) Rule {
	if r, ok := l.rules[route]; ok {
		return r
	}
	return l.defaultRule
}

// Allow records one request for (route, caller) and reports whether it
// fits in the current window. On rejection it returns ErrLimitExceeded
// together with the suggested retry-after duration. Store failures fail
// open: limiting is protection, not a dependency the API should die on.
func (l *Limiter) Allow(ctx context.Context, route, caller string) (time.Duration, error) {
	rule := l.RuleFor(route)

	count, remaining, err := l.store.Incr(ctx, route+"|"+caller, rule.Window)
	if err != nil {
		log.Printf("rate limit store failure, allowing request on %s: %v", route, err)
		return 0, nil
	}
	if count > rule.MaxRequests {
		return remaining, ErrLimitExceeded
	}
	return 0, nil
}
