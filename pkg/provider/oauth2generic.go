package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/fedgatehq/fedgate/pkg/utils"
)

const maxUserInfoBody = 1 << 20

// Oauth2Generic 标准授权码流程的通用实现，端点与用户信息字段路径
// 全部来自配置，覆盖 github/gitee/google 一类平台。
type Oauth2Generic struct {
	cred   Credential
	conf   *oauth2.Config
	client *http.Client
}

func NewOauth2Generic(cred Credential) (*Oauth2Generic, error) {
	if cred.Config.AuthURL == "" || cred.Config.TokenURL == "" {
		return nil, newProtocolError("missing auth or token endpoint", nil)
	}
	return &Oauth2Generic{
		cred:   cred,
		conf:   cred.Config.Setup(cred.Secret),
		client: newHTTPClient(),
	}, nil
}

func (p *Oauth2Generic) BuildAuthURL(state string) (string, error) {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (p *Oauth2Generic) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	otk, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOauth2Error(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cred.Config.UserInfoURL, nil)
	if err != nil {
		return nil, newProtocolError("build user info request failed", err)
	}
	otk.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return nil, newTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProtocolError(fmt.Sprintf("user info endpoint returned HTTP %d", resp.StatusCode), nil)
	}

	openID, err := utils.GjsonGet(body, p.cred.Config.OpenIDPath)
	if err != nil {
		return nil, newProtocolError("user info response missing openid", err)
	}

	identity := &Identity{
		OpenID:       openID.String(),
		UnionID:      utils.GjsonGetString(body, p.cred.Config.UnionIDPath),
		Nickname:     utils.GjsonGetString(body, p.cred.Config.NicknamePath),
		Avatar:       utils.GjsonGetString(body, p.cred.Config.AvatarPath),
		Raw:          body,
		AccessToken:  otk.AccessToken,
		RefreshToken: otk.RefreshToken,
	}
	if !otk.Expiry.IsZero() {
		identity.ExpiresIn = int64(time.Until(otk.Expiry).Seconds())
	}
	return identity, nil
}

func (p *Oauth2Generic) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	ts := p.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	otk, err := ts.Token()
	if err != nil {
		return nil, classifyOauth2Error(err)
	}

	pair := &TokenPair{
		AccessToken:  otk.AccessToken,
		RefreshToken: otk.RefreshToken,
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if !otk.Expiry.IsZero() {
		pair.ExpiresIn = int64(time.Until(otk.Expiry).Seconds())
	}
	return pair, nil
}

func classifyOauth2Error(err error) *Error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode != "" {
			return newPlatformError(rerr.ErrorCode, rerr.ErrorDescription)
		}
		return newProtocolError(fmt.Sprintf("token endpoint returned HTTP %d", rerr.Response.StatusCode), err)
	}
	return newTransportError(err)
}
