package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AuthError 登录与刷新令牌均失败
type AuthError struct {
	Op    string
	Cause error
}

// Error 实现error接口
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Cause)
}

// Unwrap 返回原始错误
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// APIError 远端返回非 2xx 状态码
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error 实现error接口
func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// TransportError 网络错误或请求超时
type TransportError struct {
	Method string
	Path   string
	Cause  error
}

// Error 实现error接口
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport: %v", e.Method, e.Path, e.Cause)
}

// Unwrap 返回原始错误
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout 是否为超时
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// IsAuthError 判断是否为认证错误
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRecoverable APIError 与 TransportError 按同一策略恢复：记录日志并保留缓存
func IsRecoverable(err error) bool {
	var apiErr *APIError
	var transportErr *TransportError
	return errors.As(err, &apiErr) || errors.As(err, &transportErr)
}

// ErrorKind 错误分类，用作指标标签：auth、timeout、error（APIError 或其他网络错误）、internal
func ErrorKind(err error) string {
	var transportErr *TransportError
	switch {
	case IsAuthError(err):
		return "auth"
	case errors.As(err, &transportErr) && transportErr.Timeout():
		return "timeout"
	case IsRecoverable(err):
		return "error"
	default:
		return "internal"
	}
}
