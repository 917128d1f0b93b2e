package singleton

import (
	"errors"

	"github.com/fedgatehq/fedgate/pkg/provider"
)

type AuthErrorKind uint8

const (
	_ AuthErrorKind = iota
	ErrKindInvalidRequest
	ErrKindConfigNotFound
	// ErrKindStateInvalid 对外统一的"state 无效"：不存在、已过期、已消费
	// 均折叠为同一种可见错误，具体原因仅记录在内部日志
	ErrKindStateInvalid
	ErrKindIdentityMismatch
	ErrKindAlreadyBoundByOther
	ErrKindAlreadyBoundBySelf
	ErrKindUserInactive
	ErrKindNotBound
	ErrKindNoRefreshToken
	ErrKindRefreshUnsupported
)

func (k AuthErrorKind) String() string {
	switch k {
	case ErrKindInvalidRequest:
		return "invalid_request"
	case ErrKindConfigNotFound:
		return "config_not_found"
	case ErrKindStateInvalid:
		return "state_invalid"
	case ErrKindIdentityMismatch:
		return "identity_mismatch"
	case ErrKindAlreadyBoundByOther:
		return "already_bound_by_other"
	case ErrKindAlreadyBoundBySelf:
		return "already_bound_by_self"
	case ErrKindUserInactive:
		return "user_inactive"
	case ErrKindNotBound:
		return "not_bound"
	case ErrKindNoRefreshToken:
		return "no_refresh_token"
	case ErrKindRefreshUnsupported:
		return "refresh_unsupported"
	default:
		return "unknown"
	}
}

type AuthError struct {
	Kind AuthErrorKind
	err  error
}

func (e *AuthError) Error() string {
	return e.err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.err
}

func newAuthError(kind AuthErrorKind, defaultMsg string, args ...any) *AuthError {
	return &AuthError{Kind: kind, err: Localizer.ErrorT(defaultMsg, args...)}
}

// IsAuthErrorKind 判断错误是否属于某一业务错误类别
func IsAuthErrorKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// errorKindOf 审计记录中的错误分类标签
func errorKindOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind.String()
	}
	if pe, ok := provider.AsError(err); ok {
		return "provider_" + pe.Kind.String()
	}
	if errors.Is(err, provider.ErrRefreshUnsupported) {
		return ErrKindRefreshUnsupported.String()
	}
	return "internal"
}
