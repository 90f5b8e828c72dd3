// Package llm 提供多 Key 负载均衡的 LLM 端点调用能力
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// FailureKind 调用失败类别
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureHTTP       FailureKind = "http"
	FailureParse      FailureKind = "parse"
	FailureNoKey      FailureKind = "no_key"
	FailureOther      FailureKind = "other"
)

// CallError 带类别的调用错误
type CallError struct {
	Kind       FailureKind
	HTTPStatus int
	Err        error
}

// Error 实现 error 接口
func (e *CallError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("llm call failed (%s, status %d): %v", e.Kind, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("llm call failed (%s): %v", e.Kind, e.Err)
}

// Unwrap 返回底层错误
func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable 该类失败是否值得换 Key 重试
func (e *CallError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout, FailureConnection, FailureHTTP:
		return true
	}
	return false
}

// AuthFailure 是否为认证类失败（401/403），该 Key 应立即标记失效
func (e *CallError) AuthFailure() bool {
	return e.Kind == FailureHTTP && (e.HTTPStatus == 401 || e.HTTPStatus == 403)
}

func newCallError(kind FailureKind, err error) *CallError {
	return &CallError{Kind: kind, Err: err}
}

func newHTTPError(status int, err error) *CallError {
	return &CallError{Kind: FailureHTTP, HTTPStatus: status, Err: err}
}

// classifyTransportError 将传输层错误归类为超时/连接/其它
func classifyTransportError(err error) *CallError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newCallError(FailureTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newCallError(FailureTimeout, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return newCallError(FailureTimeout, err)
		}
		return newCallError(FailureConnection, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return newCallError(FailureConnection, err)
	}

	return newCallError(FailureOther, err)
}

// AsCallError 将错误转换为 CallError
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
