package providers

import (
	"context"
	"time"

	"github.com/codecoder/core/internal/agent"
	"github.com/codecoder/core/internal/backoff"
	"github.com/codecoder/core/internal/ratelimit"
)

// providerLimiter throttles outbound provider requests per provider name,
// independent of any per-account limit the provider's own API enforces —
// it exists to keep a runaway tool loop from hammering a provider faster
// than its own rate limit headroom can absorb.
var providerLimiter = ratelimit.NewLimiter(ratelimit.Config{
	RequestsPerSecond: 5,
	BurstSize:         10,
	Enabled:           true,
})

// ToolCall, ToolResult, and RuntimeEvent alias the agent package's wire
// types so individual provider files can refer to them unqualified, matching
// how the teacher's provider package referred to its shared model types.
type (
	ToolCall     = agent.ToolCall
	ToolResult   = agent.ToolResult
	RuntimeEvent = agent.RuntimeEvent
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     backoff.BackoffPolicy
}

// NewBaseProvider creates a base provider with sane defaults. retryDelay
// becomes the exponential backoff policy's initial delay; everything past
// the first attempt grows from there per backoff.DefaultPolicy's factor and
// jitter rather than the flat multiple a caller might expect from the name.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(retryDelay.Milliseconds())
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		policy:     policy,
	}
}

// Retry executes op with exponential backoff and jitter, stopping early if
// isRetryable reports the error isn't worth retrying.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !providerLimiter.Allow(b.name) {
			wait := providerLimiter.WaitTime(b.name)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= b.maxRetries {
			break
		}
		if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
			return err
		}
	}
	return lastErr
}
