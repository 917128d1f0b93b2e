package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedgatehq/fedgate/model"
)

func testCredential(cfg *model.Oauth2Config) Credential {
	if cfg.AppID == "" {
		cfg.AppID = "wx-test-appid"
	}
	return Credential{Config: cfg, Secret: "test-secret"}
}

func TestRegistryDispatch(t *testing.T) {
	RegisterDefaults()

	p, err := New(model.PlatformWeChatMiniapp, testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMiniapp}))
	require.NoError(t, err)
	assert.IsType(t, &WeChatMiniapp{}, p)

	p, err = New(model.PlatformWeChatMP, testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMP}))
	require.NoError(t, err)
	assert.IsType(t, &WeChatMP{}, p)

	// 未注册平台但带有端点配置时回退到通用授权码实现
	p, err = New("gitee", testCredential(&model.Oauth2Config{
		Platform: "gitee",
		AuthURL:  "https://gitee.com/oauth/authorize",
		TokenURL: "https://gitee.com/oauth/token",
	}))
	require.NoError(t, err)
	assert.IsType(t, &Oauth2Generic{}, p)

	_, err = New("unknown", testCredential(&model.Oauth2Config{Platform: "unknown"}))
	require.Error(t, err)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindProtocol, pe.Kind)
}

func TestWeChatMiniappExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/jscode2session", r.URL.Path)
		assert.Equal(t, "wx-test-appid", r.URL.Query().Get("appid"))
		assert.Equal(t, "the-code", r.URL.Query().Get("js_code"))
		w.Write([]byte(`{"openid":"oid-1","unionid":"uid-1","session_key":"sk"}`))
	}))
	defer srv.Close()

	p := NewWeChatMiniapp(testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMiniapp}))
	p.APIBase = srv.URL

	authURL, err := p.BuildAuthURL("whatever")
	require.NoError(t, err)
	assert.Empty(t, authURL, "miniapp flows have no browser redirect step")

	id, err := p.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "oid-1", id.OpenID)
	assert.Equal(t, "uid-1", id.UnionID)
	assert.Contains(t, string(id.Raw), "session_key")

	_, err = p.RefreshToken(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRefreshUnsupported)
}

func TestWeChatMiniappPlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":40029,"errmsg":"invalid code"}`))
	}))
	defer srv.Close()

	p := NewWeChatMiniapp(testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMiniapp}))
	p.APIBase = srv.URL

	_, err := p.ExchangeCode(context.Background(), "bad-code")
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindPlatform, pe.Kind)
	assert.Equal(t, "40029", pe.Code)
	assert.Equal(t, "invalid code", pe.Message)
}

func TestWeChatMiniappProtocolError(t *testing.T) {
	cases := []struct {
		msg     string
		handler http.HandlerFunc
	}{
		{"MalformedBody", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		}},
		{"MissingOpenID", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"session_key":"sk"}`))
		}},
		{"ServerError", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
	}

	for _, c := range cases {
		t.Run(c.msg, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()

			p := NewWeChatMiniapp(testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMiniapp}))
			p.APIBase = srv.URL

			_, err := p.ExchangeCode(context.Background(), "code")
			pe, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, ErrorKindProtocol, pe.Kind)
		})
	}
}

func TestWeChatMiniappTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立即关闭以制造连接失败

	p := NewWeChatMiniapp(testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMiniapp}))
	p.APIBase = srv.URL

	_, err := p.ExchangeCode(context.Background(), "code")
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindTransport, pe.Kind)
}

func TestWeChatMPExchangeAndRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sns/oauth2/access_token":
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":7200,"openid":"oid-mp"}`))
		case "/sns/userinfo":
			assert.Equal(t, "at-1", r.URL.Query().Get("access_token"))
			w.Write([]byte(`{"openid":"oid-mp","nickname":"阿青","headimgurl":"https://cdn/avatar.png","sex":2,"country":"中国","province":"浙江","city":"杭州","unionid":"uid-mp"}`))
		case "/sns/oauth2/refresh_token":
			assert.Equal(t, "rt-1", r.URL.Query().Get("refresh_token"))
			w.Write([]byte(`{"access_token":"at-2","expires_in":7200}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewWeChatMP(testCredential(&model.Oauth2Config{Platform: model.PlatformWeChatMP}))
	p.APIBase = srv.URL

	id, err := p.ExchangeCode(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "oid-mp", id.OpenID)
	assert.Equal(t, "uid-mp", id.UnionID)
	assert.Equal(t, "阿青", id.Nickname)
	assert.Equal(t, model.GenderFemale, id.Gender)
	assert.Equal(t, "at-1", id.AccessToken)
	assert.Equal(t, "rt-1", id.RefreshToken)
	assert.EqualValues(t, 7200, id.ExpiresIn)

	pair, err := p.RefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", pair.AccessToken)
	// 平台未轮换 refresh_token 时沿用旧值
	assert.Equal(t, "rt-1", pair.RefreshToken)
}

func TestWeChatMPBuildAuthURL(t *testing.T) {
	p := NewWeChatMP(testCredential(&model.Oauth2Config{
		Platform:    model.PlatformWeChatMP,
		RedirectURI: "https://example.com/callback",
	}))

	u, err := p.BuildAuthURL("state-123")
	require.NoError(t, err)
	assert.Contains(t, u, "appid=wx-test-appid")
	assert.Contains(t, u, "state=state-123")
	assert.Contains(t, u, "scope=snsapi_userinfo")
	assert.True(t, strings.HasSuffix(u, "#wechat_redirect"))
}

func TestOauth2GenericExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gat-1","token_type":"bearer","refresh_token":"grt-1"}`))
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gat-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":10086,"login":"octocat","avatar_url":"https://cdn/octo.png"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &model.Oauth2Config{
		Platform:     model.PlatformGitHub,
		AppID:        "gh-client",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/token",
		UserInfoURL:  srv.URL + "/api/user",
		OpenIDPath:   "id",
		NicknamePath: "login",
		AvatarPath:   "avatar_url",
	}
	p, err := NewOauth2Generic(Credential{Config: cfg, Secret: "gh-secret"})
	require.NoError(t, err)

	u, err := p.BuildAuthURL("st-1")
	require.NoError(t, err)
	assert.Contains(t, u, "state=st-1")
	assert.Contains(t, u, "client_id=gh-client")

	id, err := p.ExchangeCode(context.Background(), "gh-code")
	require.NoError(t, err)
	assert.Equal(t, "10086", id.OpenID)
	assert.Equal(t, "octocat", id.Nickname)
	assert.Equal(t, "https://cdn/octo.png", id.Avatar)
	assert.Equal(t, "gat-1", id.AccessToken)
}

func TestOauth2GenericMissingOpenID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gat-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login":"octocat"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &model.Oauth2Config{
		Platform:    model.PlatformGitHub,
		AuthURL:     srv.URL + "/oauth/authorize",
		TokenURL:    srv.URL + "/oauth/token",
		UserInfoURL: srv.URL + "/api/user",
		OpenIDPath:  "id",
	}
	p, err := NewOauth2Generic(Credential{Config: cfg})
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "gh-code")
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindProtocol, pe.Kind)
}
