package llm

import (
	"context"
	"sync"
	"time"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"
)

// keyState 单个 API Key 的健康状态，仅由所属 Pool 读写
type keyState struct {
	key                 string
	totalRequests       int64
	successfulRequests  int64
	consecutiveFailures int
	lastFailureTime     time.Time
	avgResponseTime     time.Duration
	failureReasons      map[string]int
}

// healthScore 成功率与响应速度的加权健康分 (0-1)
func (s *keyState) healthScore() float64 {
	if s.totalRequests == 0 {
		return 1.0
	}
	successRate := float64(s.successfulRequests) / float64(s.totalRequests)

	// 响应越快得分越高，5s 以上视为 0 分
	latencyScore := 1.0
	if s.avgResponseTime > 0 {
		latencyScore = 1.0 - float64(s.avgResponseTime)/float64(5*time.Second)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}
	return successRate*0.7 + latencyScore*0.3
}

// KeyStats 对外暴露的 Key 统计快照
type KeyStats struct {
	Key                 string         `json:"key"`
	TotalRequests       int64          `json:"total_requests"`
	SuccessfulRequests  int64          `json:"successful_requests"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastFailureTime     time.Time      `json:"last_failure_time"`
	AvgResponseTime     time.Duration  `json:"avg_response_time"`
	HealthScore         float64        `json:"health_score"`
	FailureReasons      map[string]int `json:"failure_reasons,omitempty"`
}

// Pool API Key 池，负责轮询选 Key 与健康追踪。
// 多个协程并发调用 NextKey/RecordResult，内部以互斥锁串行化。
type Pool struct {
	mu       sync.Mutex
	provider string
	keys     []*keyState
	cursor   int

	strategy       config.PollStrategy
	maxConsecutive int
	recoveryWindow time.Duration

	// now 可注入时钟，测试用
	now func() time.Time
}

// PoolOption Pool 构造选项
type PoolOption func(*Pool)

// WithClock 注入时钟
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool 创建 Key 池。keys 保序且不去重（由调用方负责）。
func NewPool(provider string, keys []string, strategy config.PollStrategy, maxConsecutive int, recoveryWindow time.Duration, opts ...PoolOption) *Pool {
	if maxConsecutive <= 0 {
		maxConsecutive = 3
	}
	if recoveryWindow <= 0 {
		recoveryWindow = 600 * time.Second
	}
	if strategy == "" {
		strategy = config.StrategyRoundRobin
	}

	p := &Pool{
		provider:       provider,
		strategy:       strategy,
		maxConsecutive: maxConsecutive,
		recoveryWindow: recoveryWindow,
		now:            time.Now,
	}
	for _, k := range keys {
		p.keys = append(p.keys, &keyState{
			key:            k,
			failureReasons: make(map[string]int),
		})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size 池中 Key 数量
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// eligible 判定某个 Key 当前是否可用。
// 连续失败未达阈值，或距最近一次失败已超过恢复窗口（惰性自动恢复）。
func (p *Pool) eligible(s *keyState) bool {
	if s.consecutiveFailures < p.maxConsecutive {
		return true
	}
	return p.now().Sub(s.lastFailureTime) > p.recoveryWindow
}

// NextKey 返回下一个可用 Key。
// 候选集为空时全部 Key 重新视为可用并记录告警，绝不让调用方无限等待。
func (p *Pool) NextKey(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", errors.ErrNoKeyAvailable
	}

	candidates := make([]int, 0, len(p.keys))
	for i, s := range p.keys {
		if p.eligible(s) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		logger.Warn(ctx, "all api keys unhealthy, resetting candidate set",
			"provider", p.provider,
			"pool_size", len(p.keys),
		)
		for i := range p.keys {
			candidates = append(candidates, i)
		}
	}
	metrics.KeyPoolHealthyKeys.WithLabelValues(p.provider).Set(float64(len(candidates)))

	switch p.strategy {
	case config.StrategyHealthBased:
		return p.pickHealthBased(candidates), nil
	default:
		return p.pickRoundRobin(candidates), nil
	}
}

// pickRoundRobin 在候选集内循环取下一个
func (p *Pool) pickRoundRobin(candidates []int) string {
	for range p.keys {
		idx := p.cursor % len(p.keys)
		p.cursor++
		for _, c := range candidates {
			if c == idx {
				return p.keys[idx].key
			}
		}
	}
	// 游标扫不到候选时直接取候选集首个
	idx := candidates[0]
	p.cursor = idx + 1
	return p.keys[idx].key
}

// 健康分达到最高分该比例以上的候选才参与轮询
const healthScoreBand = 0.8

// pickHealthBased 用健康分筛出接近最优的候选子集，在子集内轮询。
// 分数只用来划定子集，不让单个略优的 Key 吸走全部流量。
func (p *Pool) pickHealthBased(candidates []int) string {
	bestScore := p.keys[candidates[0]].healthScore()
	for _, c := range candidates[1:] {
		if score := p.keys[c].healthScore(); score > bestScore {
			bestScore = score
		}
	}

	healthy := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if p.keys[c].healthScore() >= bestScore*healthScoreBand {
			healthy = append(healthy, c)
		}
	}
	return p.pickRoundRobin(healthy)
}

// RecordResult 记录一次调用结果，更新运行统计
func (p *Pool) RecordResult(key string, success bool, elapsed time.Duration, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.find(key)
	if s == nil {
		return
	}

	s.totalRequests++
	if elapsed > 0 {
		if s.avgResponseTime == 0 {
			s.avgResponseTime = elapsed
		} else {
			// 指数滑动平均
			s.avgResponseTime = (s.avgResponseTime*7 + elapsed*3) / 10
		}
	}

	if success {
		s.successfulRequests++
		s.consecutiveFailures = 0
		return
	}

	s.consecutiveFailures++
	s.lastFailureTime = p.now()
	if reason != "" {
		s.failureReasons[reason]++
	}
	metrics.KeyPoolFailuresTotal.WithLabelValues(p.provider, reason).Inc()
}

// MarkFailed 将 Key 立即标记为失效（认证失败等不可瞬时恢复的场景）。
// 恢复仍走 NextKey 中的惰性恢复窗口。
func (p *Pool) MarkFailed(key string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.find(key)
	if s == nil {
		return
	}
	if s.consecutiveFailures < p.maxConsecutive {
		s.consecutiveFailures = p.maxConsecutive
	}
	s.lastFailureTime = p.now()
	if reason != "" {
		s.failureReasons[reason]++
	}
	metrics.KeyPoolFailuresTotal.WithLabelValues(p.provider, reason).Inc()
}

// Snapshot 返回全部 Key 的统计快照
func (p *Pool) Snapshot() []KeyStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]KeyStats, 0, len(p.keys))
	for _, s := range p.keys {
		reasons := make(map[string]int, len(s.failureReasons))
		for k, v := range s.failureReasons {
			reasons[k] = v
		}
		out = append(out, KeyStats{
			Key:                 maskKey(s.key),
			TotalRequests:       s.totalRequests,
			SuccessfulRequests:  s.successfulRequests,
			ConsecutiveFailures: s.consecutiveFailures,
			LastFailureTime:     s.lastFailureTime,
			AvgResponseTime:     s.avgResponseTime,
			HealthScore:         s.healthScore(),
			FailureReasons:      reasons,
		})
	}
	return out
}

func (p *Pool) find(key string) *keyState {
	for _, s := range p.keys {
		if s.key == key {
			return s
		}
	}
	return nil
}

// maskKey 日志与快照中只露出 Key 尾部
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
