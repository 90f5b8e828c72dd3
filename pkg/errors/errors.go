// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// LLM 调用错误 (2xxx)
	CodeNetworkTimeout  ErrorCode = "2001"
	CodeConnectionError ErrorCode = "2002"
	CodeHTTPError       ErrorCode = "2003"
	CodeParseError      ErrorCode = "2004"
	CodeNoKeyAvailable  ErrorCode = "2005"

	// 分页错误 (3xxx)
	CodePaginationFailed ErrorCode = "3001"
	CodeValidationFailed ErrorCode = "3002"
	CodePageCountInvalid ErrorCode = "3003"

	// 模板与占位符错误 (4xxx)
	CodeTemplateNotFound         ErrorCode = "4001"
	CodeTemplateNumberUnresolved ErrorCode = "4002"
	CodePlaceholderAlreadyFilled ErrorCode = "4003"
	CodeMergeFailed              ErrorCode = "4004"

	// 外部服务错误 (5xxx)
	CodeDatabaseError ErrorCode = "5001"
	CodeCacheError    ErrorCode = "5002"
	CodeQueueError    ErrorCode = "5003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodePageCountInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeTemplateNotFound:
		return http.StatusNotFound
	case CodeConflict, CodePlaceholderAlreadyFilled:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable, CodeNoKeyAvailable:
		return http.StatusServiceUnavailable
	case CodeNetworkTimeout:
		return http.StatusGatewayTimeout
	case CodeConnectionError, CodeHTTPError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrNoKeyAvailable           = New(CodeNoKeyAvailable, "no api key available")
	ErrPaginationFailed         = New(CodePaginationFailed, "page splitting failed")
	ErrValidationFailed         = New(CodeValidationFailed, "pagination result validation failed")
	ErrTemplateNotFound         = New(CodeTemplateNotFound, "template file not found")
	ErrTemplateNumberUnresolved = New(CodeTemplateNumberUnresolved, "template number could not be resolved")
	ErrPlaceholderAlreadyFilled = New(CodePlaceholderAlreadyFilled, "placeholder already filled")
	ErrMergeFailed              = New(CodeMergeFailed, "deck merge failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
