package models

import (
	"errors"
	"fmt"
)

var (
	ErrElementNotFound       = errors.New("页面元素未找到")
	ErrUnableToBypassCaptcha = errors.New("无法通过人机验证")
	ErrSolveRequest          = errors.New("验证码识别请求失败")
	ErrInvalidConfig         = errors.New("配置无效")
)

// SolveRequestError 识别服务返回了非预期的响应
type SolveRequestError struct {
	Stage    string // submit 或 result
	Response string
	Cause    error
}

// Error 实现error接口
func (e *SolveRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("验证码识别请求失败 [%s]: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("验证码识别请求失败 [%s]: %q", e.Stage, e.Response)
}

// Is 匹配 ErrSolveRequest
func (e *SolveRequestError) Is(target error) bool {
	return target == ErrSolveRequest
}

// Unwrap 支持errors.Unwrap
func (e *SolveRequestError) Unwrap() error {
	return e.Cause
}

// BypassError 页面人机验证最终失败
type BypassError struct {
	URL     string
	Retries int
	Cause   error
}

// Error 实现error接口
func (e *BypassError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("无法通过人机验证 [%s] (重试%d次): %v", e.URL, e.Retries, e.Cause)
	}
	return fmt.Sprintf("无法通过人机验证 [%s] (重试%d次)", e.URL, e.Retries)
}

// Is 匹配 ErrUnableToBypassCaptcha
func (e *BypassError) Is(target error) bool {
	return target == ErrUnableToBypassCaptcha
}

// Unwrap 支持errors.Unwrap
func (e *BypassError) Unwrap() error {
	return e.Cause
}
