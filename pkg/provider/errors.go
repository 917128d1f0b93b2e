package provider

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	// ErrorKindTransport 网络/超时类错误，调用方可重新发起握手
	ErrorKindTransport ErrorKind = iota + 1
	// ErrorKindProtocol 非 2xx 或响应结构异常，需要排查后才可重试
	ErrorKindProtocol
	// ErrorKindPlatform 平台返回的业务错误码
	ErrorKindPlatform
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransport:
		return "transport"
	case ErrorKindProtocol:
		return "protocol"
	case ErrorKindPlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// ErrRefreshUnsupported 平台不支持令牌刷新，需重新走授权流程
var ErrRefreshUnsupported = errors.New("platform does not support token refresh")

// Error 第三方交互失败的类型化错误
type Error struct {
	Kind    ErrorKind
	Code    string // 平台业务错误码，仅 Kind==platform 时有值
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider %s error [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newTransportError(err error) *Error {
	return &Error{Kind: ErrorKindTransport, Message: err.Error(), err: err}
}

func newProtocolError(msg string, err error) *Error {
	return &Error{Kind: ErrorKindProtocol, Message: msg, err: err}
}

func newPlatformError(code, msg string) *Error {
	return &Error{Kind: ErrorKindPlatform, Code: code, Message: msg}
}

// AsError 取出类型化的 provider 错误
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
