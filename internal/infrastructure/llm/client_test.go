package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/config"
)

func newTestCaller(t *testing.T, keys []string, maxRetries int) *Caller {
	t.Helper()
	cfg := config.ProviderConfig{
		Kind:       config.ProviderKindChat,
		BaseURL:    "http://localhost:1",
		Model:      "test-model",
		MaxRetries: maxRetries,
	}
	pool := NewPool("test", keys, config.StrategyRoundRobin, 3, time.Minute)
	caller, err := NewCaller("test", cfg, pool,
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))
	require.NoError(t, err)
	return caller
}

func TestCallWithRetryRotatesKeyAfterAuthFailure(t *testing.T) {
	caller := newTestCaller(t, []string{"bad-key", "good-key"}, 3)

	var used []string
	content, err := caller.CallWithRetry(context.Background(), func(ctx context.Context, key string) (string, error) {
		used = append(used, key)
		if key == "bad-key" {
			return "", newHTTPError(401, fmt.Errorf("unauthorized"))
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", content)
	assert.Equal(t, []string{"bad-key", "good-key"}, used)

	// 认证失败的 Key 被立即标记失效，后续调用不再轮到它
	for i := 0; i < 4; i++ {
		key, err := caller.Pool().NextKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "good-key", key)
	}
}

func TestCallWithRetryParseFailureNotRetried(t *testing.T) {
	caller := newTestCaller(t, []string{"k1"}, 3)

	attempts := 0
	_, err := caller.CallWithRetry(context.Background(), func(ctx context.Context, key string) (string, error) {
		attempts++
		return "", newCallError(FailureParse, fmt.Errorf("bad json"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, FailureParse, ce.Kind)
}

func TestCallWithRetryExhaustsBudget(t *testing.T) {
	caller := newTestCaller(t, []string{"k1", "k2"}, 2)

	attempts := 0
	_, err := caller.CallWithRetry(context.Background(), func(ctx context.Context, key string) (string, error) {
		attempts++
		return "", newHTTPError(500, fmt.Errorf("server error"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "exhausted 2 attempts")
}

func TestCallWithRetrySleepAborts(t *testing.T) {
	cfg := config.ProviderConfig{
		Kind:       config.ProviderKindChat,
		BaseURL:    "http://localhost:1",
		MaxRetries: 3,
	}
	pool := NewPool("test", []string{"k1"}, config.StrategyRoundRobin, 3, time.Minute)
	caller, err := NewCaller("test", cfg, pool,
		WithSleep(func(ctx context.Context, d time.Duration) error { return context.Canceled }))
	require.NoError(t, err)

	_, err = caller.CallWithRetry(context.Background(), func(ctx context.Context, key string) (string, error) {
		return "", newHTTPError(500, fmt.Errorf("server error"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	caller := newTestCaller(t, []string{"k1"}, 3)
	caller.jitter = func() float64 { return 0.5 } // 抖动因子恰为 1.0

	assert.Equal(t, 1*time.Second, caller.backoff(0, FailureHTTP))
	assert.Equal(t, 2*time.Second, caller.backoff(1, FailureHTTP))
	assert.Equal(t, 4*time.Second, caller.backoff(2, FailureHTTP))

	// 各失败类别有独立上限
	assert.Equal(t, maxBackoffTimeout, caller.backoff(10, FailureTimeout))
	assert.Equal(t, maxBackoffConnection, caller.backoff(10, FailureConnection))
	assert.Equal(t, maxBackoffOther, caller.backoff(10, FailureHTTP))
}

func TestBackoffJitterRange(t *testing.T) {
	caller := newTestCaller(t, []string{"k1"}, 3)

	caller.jitter = func() float64 { return 0 }
	assert.Equal(t, 900*time.Millisecond, caller.backoff(0, FailureHTTP))

	caller.jitter = func() float64 { return 1 }
	assert.Equal(t, 1100*time.Millisecond, caller.backoff(0, FailureHTTP))
}

func TestClassifyTransportError(t *testing.T) {
	ce := classifyTransportError(context.DeadlineExceeded)
	assert.Equal(t, FailureTimeout, ce.Kind)

	ce = classifyTransportError(fmt.Errorf("some opaque failure"))
	assert.Equal(t, FailureOther, ce.Kind)
}

func TestCallErrorClassification(t *testing.T) {
	assert.True(t, newHTTPError(401, fmt.Errorf("x")).AuthFailure())
	assert.True(t, newHTTPError(403, fmt.Errorf("x")).AuthFailure())
	assert.False(t, newHTTPError(500, fmt.Errorf("x")).AuthFailure())

	assert.True(t, newCallError(FailureTimeout, fmt.Errorf("x")).Retryable())
	assert.True(t, newHTTPError(500, fmt.Errorf("x")).Retryable())
	assert.False(t, newCallError(FailureParse, fmt.Errorf("x")).Retryable())
}
