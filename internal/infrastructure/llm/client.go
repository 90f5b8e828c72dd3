package llm

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// 各失败类别的退避延迟上限
const (
	maxBackoffTimeout    = 30 * time.Second
	maxBackoffConnection = 20 * time.Second
	maxBackoffOther      = 15 * time.Second

	baseBackoff = 1 * time.Second
	// jitterRatio 退避延迟的抖动幅度 (±10%)
	jitterRatio = 0.1
)

// AttemptFunc 单次调用闭包：给定本次使用的 Key，返回回答文本。
// 重试策略与请求构造解耦，便于独立测试。
type AttemptFunc func(ctx context.Context, key string) (string, error)

// Caller 带重试与 Key 轮换的 LLM 端点调用器。
// 每次尝试都向 Pool 取一个新 Key；重试预算耗尽后向上抛出
// 类型化失败，兜底策略由调用方（PageSplitter 等）决定。
type Caller struct {
	provider   string
	cfg        config.ProviderConfig
	pool       *Pool
	decoder    Decoder
	httpClient *http.Client

	// sleep 与 jitter 可注入，测试用
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// CallerOption Caller 构造选项
type CallerOption func(*Caller)

// WithHTTPClient 注入 HTTP 客户端
func WithHTTPClient(hc *http.Client) CallerOption {
	return func(c *Caller) { c.httpClient = hc }
}

// WithSleep 注入延迟函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) CallerOption {
	return func(c *Caller) { c.sleep = sleep }
}

// NewCaller 创建调用器
func NewCaller(provider string, cfg config.ProviderConfig, pool *Pool, opts ...CallerOption) (*Caller, error) {
	decoder, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Caller{
		provider:   provider,
		cfg:        cfg,
		pool:       pool,
		decoder:    decoder,
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleepContext,
		jitter:     rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider 返回提供商名称
func (c *Caller) Provider() string {
	return c.provider
}

// Pool 返回底层 Key 池
func (c *Caller) Pool() *Pool {
	return c.pool
}

// Call 发起一次带重试的调用，返回完整回答文本
func (c *Caller) Call(ctx context.Context, system, user string) (string, error) {
	return c.CallWithRetry(ctx, func(ctx context.Context, key string) (string, error) {
		return c.attempt(ctx, key, system, user)
	})
}

// CallWithRetry 执行重试循环：每次尝试换用新轮询到的 Key，
// 指数退避加 ±10% 抖动，按失败类别封顶。
func (c *Caller) CallWithRetry(ctx context.Context, fn AttemptFunc) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Call")
	span.SetAttributes(attribute.String("llm.provider", c.provider))
	defer span.End()

	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	consecutiveTimeouts := 0

	for attempt := 0; attempt < maxRetries; attempt++ {
		key, err := c.pool.NextKey(ctx)
		if err != nil {
			span.RecordError(err)
			return "", err
		}

		start := time.Now()
		content, err := fn(ctx, key)
		elapsed := time.Since(start)
		metrics.LLMCallDuration.WithLabelValues(c.provider).Observe(elapsed.Seconds())

		if err == nil {
			c.pool.RecordResult(key, true, elapsed, "")
			metrics.LLMCallTotal.WithLabelValues(c.provider, "success").Inc()
			return content, nil
		}

		lastErr = err
		ce, ok := AsCallError(err)
		if !ok {
			ce = newCallError(FailureOther, err)
		}
		c.pool.RecordResult(key, false, elapsed, string(ce.Kind))
		metrics.LLMCallTotal.WithLabelValues(c.provider, string(ce.Kind)).Inc()

		// 解析类失败重试同一调用没有意义，立即上抛
		if ce.Kind == FailureParse {
			span.RecordError(err)
			return "", err
		}

		switch {
		case ce.AuthFailure():
			// 认证失败不是瞬时问题，该 Key 立即失效
			c.pool.MarkFailed(key, "auth")
			logger.Warn(ctx, "api key auth failure, key disabled",
				"provider", c.provider,
				"status", ce.HTTPStatus,
			)
		case ce.Kind == FailureTimeout:
			consecutiveTimeouts++
			if consecutiveTimeouts >= 2 {
				c.pool.MarkFailed(key, "timeout")
				consecutiveTimeouts = 0
			}
		case ce.Kind == FailureConnection:
			c.pool.MarkFailed(key, "connection")
		default:
			consecutiveTimeouts = 0
		}

		if attempt == maxRetries-1 {
			break
		}

		metrics.LLMRetryTotal.WithLabelValues(c.provider, string(ce.Kind)).Inc()
		delay := c.backoff(attempt, ce.Kind)
		logger.Warn(ctx, "llm call failed, retrying",
			"provider", c.provider,
			"attempt", attempt+1,
			"kind", string(ce.Kind),
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	span.RecordError(lastErr)
	return "", fmt.Errorf("llm call exhausted %d attempts: %w", maxRetries, lastErr)
}

// attempt 执行单次 HTTP 调用
func (c *Caller) attempt(ctx context.Context, key, system, user string) (string, error) {
	req, err := c.decoder.BuildRequest(ctx, key, system, user)
	if err != nil {
		return "", newCallError(FailureOther, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", newHTTPError(resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	return c.decoder.DecodeResponse(resp)
}

// backoff 计算第 attempt 次重试前的延迟
func (c *Caller) backoff(attempt int, kind FailureKind) time.Duration {
	delay := baseBackoff << uint(attempt)

	limit := maxBackoffOther
	switch kind {
	case FailureTimeout:
		limit = maxBackoffTimeout
	case FailureConnection:
		limit = maxBackoffConnection
	}
	if delay > limit {
		delay = limit
	}

	// ±10% 抖动
	factor := 1 + jitterRatio*(2*c.jitter()-1)
	return time.Duration(float64(delay) * factor)
}

// sleepContext 可被 context 打断的 sleep
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewPoolFromConfig 按提供商配置构造 Key 池
func NewPoolFromConfig(provider string, cfg config.ProviderConfig) *Pool {
	return NewPool(provider, cfg.APIKeys, cfg.Strategy, cfg.MaxConsecutiveFailures, cfg.RecoveryWindow)
}
