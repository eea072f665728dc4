package callable

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是可调用函数对外暴露的错误分类。
type Code string

const (
	CodeUnauthenticated    Code = "unauthenticated"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeNotFound           Code = "not-found"
	CodePermissionDenied   Code = "permission-denied"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeResourceExhausted  Code = "resource-exhausted"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal"
)

// Status 返回线上协议使用的大写状态名，例如 PERMISSION_DENIED。
func (c Code) Status() string {
	switch c {
	case CodeUnauthenticated:
		return "UNAUTHENTICATED"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodePermissionDenied:
		return "PERMISSION_DENIED"
	case CodeFailedPrecondition:
		return "FAILED_PRECONDITION"
	case CodeResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case CodeUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus 返回错误分类对应的 HTTP 状态码。
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidArgument, CodeFailedPrecondition:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error 是携带分类的函数错误，Message 会原样返回给调用方。
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 暴露底层错误，便于日志与 errors.Is 判断。
func (e *Error) Unwrap() error {
	return e.cause
}

// Errorf 构造指定分类的错误。
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 以指定分类包装底层错误，message 为对外描述。
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// As 从错误链中提取 *Error。
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Mapper 将领域错误映射为函数错误，无法识别时返回 nil。
type Mapper func(error) *Error

// Normalize 将任意错误转换为 *Error：已分类的保持不变，其余交给 mapper，仍无法识别的统一为 internal。
func Normalize(err error, mapper Mapper) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	if mapper != nil {
		if mapped := mapper(err); mapped != nil {
			if mapped.cause == nil {
				mapped.cause = err
			}
			return mapped
		}
	}
	return Wrap(CodeInternal, "internal error", err)
}
