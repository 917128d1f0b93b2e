// Package provider normalizes heterogeneous third-party authorization
// protocols into a single identity shape. Providers are pure translation
// layers: they never persist anything and are invoked synchronously per
// request under the caller's context.
package provider

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fedgatehq/fedgate/model"
)

const (
	callTimeout    = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// Identity 归一化后的第三方身份
type Identity struct {
	OpenID  string `json:"openid,omitempty"`
	UnionID string `json:"unionid,omitempty"`

	Nickname string       `json:"nickname,omitempty"`
	Avatar   string       `json:"avatar,omitempty"`
	Gender   model.Gender `json:"gender,omitempty"`
	Country  string       `json:"country,omitempty"`
	Province string       `json:"province,omitempty"`
	City     string       `json:"city,omitempty"`
	Language string       `json:"language,omitempty"`

	// Raw 平台原始响应，入库前由调用方脱敏
	Raw []byte `json:"-"`

	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type Provider interface {
	// BuildAuthURL returns the third-party authorization URL for a web
	// redirect flow. Native SDK flows (e.g. miniapp login) have no
	// browser step and return "": callers proceed straight to the code
	// exchange.
	BuildAuthURL(state string) (string, error)

	// ExchangeCode trades an authorization code for a normalized
	// identity. Failures carry a *Error distinguishing transport,
	// protocol and platform-reported errors.
	ExchangeCode(ctx context.Context, code string) (*Identity, error)

	// RefreshToken rotates an access token. Platforms without refresh
	// semantics fail with ErrRefreshUnsupported so callers can surface
	// "re-authenticate" instead of "retry".
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// Credential 已解密的应用凭据，由凭据存储解析后传入
type Credential struct {
	Config *model.Oauth2Config
	Secret string
}

type BuilderFunc func(cred Credential) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]BuilderFunc)
)

// Register binds a platform identifier to a provider builder. Platforms
// are registered explicitly at startup; there is no reflection-based
// dispatch.
func Register(platform string, builder BuilderFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[platform] = builder
}

// New builds the provider for a platform. Platforms without a dedicated
// implementation fall back to the generic authorization-code provider
// when the configuration carries its endpoints.
func New(platform string, cred Credential) (Provider, error) {
	registryMu.RLock()
	builder, ok := registry[platform]
	registryMu.RUnlock()

	if ok {
		return builder(cred)
	}

	if cred.Config.AuthURL != "" && cred.Config.TokenURL != "" {
		return NewOauth2Generic(cred)
	}
	return nil, newProtocolError("unsupported platform: "+platform, nil)
}

// RegisterDefaults wires the built-in platform implementations.
func RegisterDefaults() {
	Register(model.PlatformWeChatMP, func(cred Credential) (Provider, error) {
		return NewWeChatMP(cred), nil
	})
	Register(model.PlatformWeChatMiniapp, func(cred Credential) (Provider, error) {
		return NewWeChatMiniapp(cred), nil
	})
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: callTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
		},
	}
}
