package model

// Platform 第三方平台标识，开放字符串，常用平台在此枚举
const (
	PlatformWeChatMP      = "wechat_mp"      // 微信公众号网页授权
	PlatformWeChatMiniapp = "wechat_miniapp" // 微信小程序登录
	PlatformWeChatOpen    = "wechat_open"    // 微信开放平台App登录
	PlatformAlipayMiniapp = "alipay_miniapp"
	PlatformAlipayApp     = "alipay_app"
	PlatformQQWeb         = "qq_web"
	PlatformQQApp         = "qq_app"
	PlatformGitHub        = "github"
	PlatformGitee         = "gitee"
	PlatformGoogle        = "google"
)

// ClientType 客户端类型，同一平台可能按端分配不同的应用凭据
const (
	ClientTypeWeb     = "web"
	ClientTypeMiniapp = "miniapp"
	ClientTypeApp     = "app"
	ClientTypeDesktop = "desktop"
)

func IsValidClientType(ct string) bool {
	switch ct {
	case ClientTypeWeb, ClientTypeMiniapp, ClientTypeApp, ClientTypeDesktop:
		return true
	}
	return false
}

// DefaultClientType is the documented fallback used when an SDK-driven
// flow completes without round-tripping a state token. Treating the code
// itself as the single-use secret is an explicit policy for these flows,
// not an oversight; see the callback handler.
func DefaultClientType(platform string) string {
	switch platform {
	case PlatformWeChatMiniapp, PlatformAlipayMiniapp:
		return ClientTypeMiniapp
	case PlatformWeChatOpen, PlatformAlipayApp, PlatformQQApp:
		return ClientTypeApp
	default:
		return ClientTypeWeb
	}
}
