package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/pkg/errors"
)

func TestPoolRoundRobin(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2", "k3"}, config.StrategyRoundRobin, 3, time.Minute)
	ctx := context.Background()

	var got []string
	for i := 0; i < 6; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		got = append(got, key)
	}
	assert.Equal(t, []string{"k1", "k2", "k3", "k1", "k2", "k3"}, got)
}

func TestPoolEmpty(t *testing.T) {
	pool := NewPool("test", nil, config.StrategyRoundRobin, 3, time.Minute)
	_, err := pool.NextKey(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoKeyAvailable, err)
}

func TestPoolSkipsMarkedFailedKey(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyRoundRobin, 3, time.Minute)
	ctx := context.Background()

	pool.MarkFailed("k1", "auth")

	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, "k2", key)
	}
}

func TestPoolConsecutiveFailureThreshold(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyRoundRobin, 3, time.Minute)
	ctx := context.Background()

	// 未达阈值前 k1 仍然可用
	pool.RecordResult("k1", false, time.Second, "http")
	pool.RecordResult("k1", false, time.Second, "http")
	keys := map[string]bool{}
	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		keys[key] = true
	}
	assert.True(t, keys["k1"])

	// 第三次连续失败后被排除
	pool.RecordResult("k1", false, time.Second, "http")
	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, "k2", key)
	}
}

func TestPoolSuccessResetsFailures(t *testing.T) {
	pool := NewPool("test", []string{"k1"}, config.StrategyRoundRobin, 3, time.Minute)

	pool.RecordResult("k1", false, time.Second, "http")
	pool.RecordResult("k1", false, time.Second, "http")
	pool.RecordResult("k1", true, time.Second, "")

	stats := pool.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].ConsecutiveFailures)
}

func TestPoolLazyRecovery(t *testing.T) {
	now := time.Now()
	clock := &now
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyRoundRobin, 3, 10*time.Minute,
		WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	pool.MarkFailed("k1", "auth")

	key, err := pool.NextKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	// 恢复窗口过后 k1 重新进入候选集
	later := now.Add(11 * time.Minute)
	clock = &later
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		seen[key] = true
	}
	assert.True(t, seen["k1"])
}

func TestPoolAllUnhealthyResetsCandidates(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyRoundRobin, 1, time.Hour)
	ctx := context.Background()

	pool.MarkFailed("k1", "auth")
	pool.MarkFailed("k2", "auth")

	// 全部失效时不能让调用方饿死
	key, err := pool.NextKey(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"k1", "k2"}, key)
}

func TestPoolHealthBasedExcludesDegradedKey(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyHealthBased, 5, time.Minute)
	ctx := context.Background()

	// k1 一半失败，健康分掉出高分区间
	pool.RecordResult("k1", false, time.Second, "http")
	pool.RecordResult("k1", true, time.Second, "")
	pool.RecordResult("k2", true, time.Second, "")
	pool.RecordResult("k2", true, time.Second, "")

	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, "k2", key)
	}
}

func TestPoolHealthBasedRotatesAmongHealthyKeys(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyHealthBased, 5, time.Minute)
	ctx := context.Background()

	// 延迟略有差异但都健康，流量不能被单个 Key 垄断
	pool.RecordResult("k1", true, time.Second, "")
	pool.RecordResult("k2", true, 500*time.Millisecond, "")

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		key, err := pool.NextKey(ctx)
		require.NoError(t, err)
		seen[key]++
	}
	assert.Equal(t, 2, seen["k1"])
	assert.Equal(t, 2, seen["k2"])
}

func TestPoolHealthBasedEqualScoresRoundRobin(t *testing.T) {
	pool := NewPool("test", []string{"k1", "k2"}, config.StrategyHealthBased, 5, time.Minute)
	ctx := context.Background()

	first, err := pool.NextKey(ctx)
	require.NoError(t, err)
	second, err := pool.NextKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSnapshotMasksKeys(t *testing.T) {
	pool := NewPool("test", []string{"sk-abcdef1234567890"}, config.StrategyRoundRobin, 3, time.Minute)
	stats := pool.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, "****7890", stats[0].Key)
	assert.NotContains(t, stats[0].Key, "abcdef")
}

func TestMaskKeyShort(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
}

func TestHealthScoreNewKeyIsPerfect(t *testing.T) {
	s := &keyState{}
	assert.InDelta(t, 1.0, s.healthScore(), 0.0001)
}

func TestHealthScoreDegradesWithLatency(t *testing.T) {
	fast := &keyState{totalRequests: 10, successfulRequests: 10, avgResponseTime: 100 * time.Millisecond}
	slow := &keyState{totalRequests: 10, successfulRequests: 10, avgResponseTime: 10 * time.Second}
	assert.Greater(t, fast.healthScore(), slow.healthScore())
}
