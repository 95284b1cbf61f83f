package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code 稳定的错误码
type Code string

const (
	CodeInvalidParameters      Code = "INVALID_PARAMETERS"
	CodeInvalidOrder           Code = "INVALID_ORDER"
	CodeSecurityCheckFailed    Code = "SECURITY_CHECK_FAILED"
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeLoginFailed            Code = "LOGIN_FAILED"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeRequestBlocked         Code = "REQUEST_BLOCKED"
	CodeOrderCreationFailed    Code = "ORDER_CREATION_FAILED"
	CodeItemNotForSale         Code = "ITEM_NOT_FOR_SALE"
	CodeMissingAmount          Code = "MISSING_AMOUNT"
	CodeMissingTokenAmount     Code = "MISSING_TOKEN_AMOUNT"
	CodeUnsupportedOrderType   Code = "UNSUPPORTED_ORDER_TYPE"
	CodeMissingPrivateKey      Code = "MISSING_PRIVATE_KEY"
	CodeUnknown                Code = "UNKNOWN_ERROR"
)

// Error 带错误码的业务错误
type Error struct {
	Code  Code
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Cause 兼容 github.com/pkg/errors
func (e *Error) Cause() error { return e.cause }

// Unwrap 兼容标准库 errors
func (e *Error) Unwrap() error { return e.cause }

// NewError 创建业务错误
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapError 用错误码包装底层错误
func WrapError(cause error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf 返回错误链上第一个业务错误码，没有则为 UNKNOWN_ERROR
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode 判断错误码
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// StatusCode 状态码归类：429 限流、403 封禁，其余为 nil
func StatusCode(status int, action string) error {
	switch status {
	case 429:
		return NewError(CodeRateLimited, "%s失败: 请求太频繁", action)
	case 403:
		return NewError(CodeRequestBlocked, "%s失败: 请求被封禁", action)
	}
	return nil
}
