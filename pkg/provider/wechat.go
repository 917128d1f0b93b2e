package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/fedgatehq/fedgate/model"
)

const (
	wechatAPIBase  = "https://api.weixin.qq.com"
	wechatOpenBase = "https://open.weixin.qq.com"
)

// WeChatMP 微信公众号网页授权（snsapi 流程），openid 随令牌一起返回，
// 支持 refresh_token 刷新。
type WeChatMP struct {
	cred   Credential
	client *http.Client

	// APIBase/AuthBase 可在测试中指向 httptest 服务
	APIBase  string
	AuthBase string
}

func NewWeChatMP(cred Credential) *WeChatMP {
	return &WeChatMP{
		cred:     cred,
		client:   newHTTPClient(),
		APIBase:  wechatAPIBase,
		AuthBase: wechatOpenBase,
	}
}

func (p *WeChatMP) BuildAuthURL(state string) (string, error) {
	scope := p.cred.Config.Scopes
	if scope == "" {
		scope = "snsapi_userinfo"
	}
	q := url.Values{}
	q.Set("appid", p.cred.Config.AppID)
	q.Set("redirect_uri", p.cred.Config.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", scope)
	q.Set("state", state)
	return p.AuthBase + "/connect/oauth2/authorize?" + q.Encode() + "#wechat_redirect", nil
}

func (p *WeChatMP) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	q := url.Values{}
	q.Set("appid", p.cred.Config.AppID)
	q.Set("secret", p.cred.Secret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	body, err := wechatGet(ctx, p.client, p.APIBase+"/sns/oauth2/access_token?"+q.Encode())
	if err != nil {
		return nil, err
	}

	token := gjson.GetBytes(body, "access_token").String()
	openID := gjson.GetBytes(body, "openid").String()
	if openID == "" {
		return nil, newProtocolError("access token response missing openid", nil)
	}

	identity := &Identity{
		OpenID:       openID,
		UnionID:      gjson.GetBytes(body, "unionid").String(),
		Raw:          body,
		AccessToken:  token,
		RefreshToken: gjson.GetBytes(body, "refresh_token").String(),
		ExpiresIn:    gjson.GetBytes(body, "expires_in").Int(),
	}

	// snsapi_base 授权拿不到用户资料，此时仅返回 openid
	info, err := p.fetchUserInfo(ctx, token, openID)
	if err == nil {
		identity.Nickname = gjson.GetBytes(info, "nickname").String()
		identity.Avatar = gjson.GetBytes(info, "headimgurl").String()
		identity.Gender = model.Gender(gjson.GetBytes(info, "sex").Uint())
		identity.Country = gjson.GetBytes(info, "country").String()
		identity.Province = gjson.GetBytes(info, "province").String()
		identity.City = gjson.GetBytes(info, "city").String()
		identity.Raw = info
		if u := gjson.GetBytes(info, "unionid").String(); u != "" {
			identity.UnionID = u
		}
	}
	return identity, nil
}

func (p *WeChatMP) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	q := url.Values{}
	q.Set("appid", p.cred.Config.AppID)
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", refreshToken)

	body, err := wechatGet(ctx, p.client, p.APIBase+"/sns/oauth2/refresh_token?"+q.Encode())
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{
		AccessToken:  gjson.GetBytes(body, "access_token").String(),
		RefreshToken: gjson.GetBytes(body, "refresh_token").String(),
		ExpiresIn:    gjson.GetBytes(body, "expires_in").Int(),
	}
	if pair.AccessToken == "" {
		return nil, newProtocolError("refresh response missing access_token", nil)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (p *WeChatMP) fetchUserInfo(ctx context.Context, token, openID string) ([]byte, error) {
	q := url.Values{}
	q.Set("access_token", token)
	q.Set("openid", openID)
	q.Set("lang", "zh_CN")
	return wechatGet(ctx, p.client, p.APIBase+"/sns/userinfo?"+q.Encode())
}

// WeChatMiniapp 微信小程序 jscode2session 登录。没有网页跳转步骤，
// session_key 不可刷新，重登由小程序端重新 wx.login() 发起。
type WeChatMiniapp struct {
	cred   Credential
	client *http.Client

	APIBase string
}

func NewWeChatMiniapp(cred Credential) *WeChatMiniapp {
	return &WeChatMiniapp{
		cred:    cred,
		client:  newHTTPClient(),
		APIBase: wechatAPIBase,
	}
}

func (p *WeChatMiniapp) BuildAuthURL(string) (string, error) {
	return "", nil
}

func (p *WeChatMiniapp) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	q := url.Values{}
	q.Set("appid", p.cred.Config.AppID)
	q.Set("secret", p.cred.Secret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")

	body, err := wechatGet(ctx, p.client, p.APIBase+"/sns/jscode2session?"+q.Encode())
	if err != nil {
		return nil, err
	}

	openID := gjson.GetBytes(body, "openid").String()
	if openID == "" {
		return nil, newProtocolError("jscode2session response missing openid", nil)
	}

	// 昵称、头像需小程序端另行上报，这里只拿到身份标识
	return &Identity{
		OpenID:  openID,
		UnionID: gjson.GetBytes(body, "unionid").String(),
		Raw:     body,
	}, nil
}

func (p *WeChatMiniapp) RefreshToken(context.Context, string) (*TokenPair, error) {
	return nil, ErrRefreshUnsupported
}

// wechatGet 执行请求并统一处理微信风格的 errcode/errmsg 业务错误
func wechatGet(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newProtocolError("build request failed", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return nil, newTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProtocolError(fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode), nil)
	}
	if !gjson.ValidBytes(body) {
		return nil, newProtocolError("response is not valid JSON", nil)
	}

	if errcode := gjson.GetBytes(body, "errcode"); errcode.Exists() && errcode.Int() != 0 {
		return nil, newPlatformError(errcode.String(), gjson.GetBytes(body, "errmsg").String())
	}
	return body, nil
}
