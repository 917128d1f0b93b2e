package model

import (
	"strings"

	"golang.org/x/oauth2"
)

// Oauth2Config 对应一条第三方平台的应用注册信息。
// AppSecret 落库前必须经过 AEAD 加密，运行时按 (platform, client_type)
// 在启用的记录中检索，同键多条时按 priority、created_at 取最优。
type Oauth2Config struct {
	Common

	Name       string `json:"name,omitempty"`
	Platform   string `gorm:"index:idx_platform_client;uniqueIndex:u_platform_appid" json:"platform,omitempty"`
	ClientType string `gorm:"index:idx_platform_client" json:"client_type,omitempty"`
	AppID      string `gorm:"uniqueIndex:u_platform_appid" json:"app_id,omitempty"`
	AppSecret  string `json:"-"`

	RedirectURI string `json:"redirect_uri,omitempty"`
	Scopes      string `json:"scopes,omitempty"`

	AuthURL     string `json:"auth_url,omitempty"`
	TokenURL    string `json:"token_url,omitempty"`
	UserInfoURL string `json:"user_info_url,omitempty"`

	// 用户信息响应中各字段的 gjson 路径
	OpenIDPath   string `json:"open_id_path,omitempty"`
	UnionIDPath  string `json:"union_id_path,omitempty"`
	NicknamePath string `json:"nickname_path,omitempty"`
	AvatarPath   string `json:"avatar_path,omitempty"`

	Enabled  bool  `gorm:"index" json:"enabled,omitempty"`
	Priority int64 `json:"priority,omitempty"`
}

func (c *Oauth2Config) SplitScopes() []string {
	if c.Scopes == "" {
		return nil
	}
	return strings.Fields(c.Scopes)
}

// Setup builds the golang.org/x/oauth2 client configuration used by
// standard authorization-code providers. secret is the decrypted AppSecret.
func (c *Oauth2Config) Setup(secret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.AppID,
		ClientSecret: secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
		RedirectURL: c.RedirectURI,
		Scopes:      c.SplitScopes(),
	}
}

type Oauth2ConfigForm struct {
	Name       string `json:"name,omitempty"`
	Platform   string `json:"platform,omitempty"`
	ClientType string `json:"client_type,omitempty"`
	AppID      string `json:"app_id,omitempty"`
	AppSecret  string `json:"app_secret,omitempty"`

	RedirectURI string `json:"redirect_uri,omitempty"`
	Scopes      string `json:"scopes,omitempty"`

	AuthURL     string `json:"auth_url,omitempty"`
	TokenURL    string `json:"token_url,omitempty"`
	UserInfoURL string `json:"user_info_url,omitempty"`

	OpenIDPath   string `json:"open_id_path,omitempty"`
	UnionIDPath  string `json:"union_id_path,omitempty"`
	NicknamePath string `json:"nickname_path,omitempty"`
	AvatarPath   string `json:"avatar_path,omitempty"`

	Enabled  bool  `json:"enabled,omitempty"`
	Priority int64 `json:"priority,omitempty"`
}
