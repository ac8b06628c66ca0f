// Package ratelimit throttles MCP tool calls with one token bucket per tool.
package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited is wrapped by CheckLimit when a tool has no token left.
var ErrLimited = errors.New("rate limit exceeded")

// now is the clock used for token accounting.
var now = time.Now

// ToolLimiters maps tool names to their token buckets.
type ToolLimiters map[string]*rate.Limiter

// NewLimiter returns a bucket refilled at perSecond tokens per second that
// starts full with burst tokens.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewToolLimiters creates the default per-tool limits. Expansion parses a
// whole base configuration per call and gets the tighter budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"cosim_validate": NewLimiter(1, 10),
		"cosim_expand":   NewLimiter(0.5, 5),
		"cosim_runs":     NewLimiter(1, 10),
	}
}

// CheckLimit consumes one token for tool. Tools without a limiter are
// never throttled.
func CheckLimit(limiters ToolLimiters, tool string) error {
	l, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !l.AllowN(now(), 1) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, tool)
	}
	return nil
}
