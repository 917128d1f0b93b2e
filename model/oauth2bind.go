package model

import "time"

type BindStatus uint8

const (
	BindStatusUnbound BindStatus = iota
	BindStatusBound
)

func (s BindStatus) IsBound() bool {
	return s == BindStatusBound
}

type Gender uint8

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

// Oauth2Bind 本地用户与某条配置下外部身份的持久关联。
// 解绑是状态翻转而非删除，历史行与计数器保留，可被恢复复用。
// 两个唯一索引把并发冲突下沉到存储层：同一 (config, openid) 至多绑定
// 一个本地用户，同一 (user, config) 至多持有一条绑定。
type Oauth2Bind struct {
	Common

	UserID     uint64 `gorm:"uniqueIndex:u_user_config" json:"user_id,omitempty"`
	ConfigID   uint64 `gorm:"uniqueIndex:u_user_config;uniqueIndex:u_config_openid" json:"config_id,omitempty"`
	Platform   string `gorm:"index" json:"platform,omitempty"`
	OpenID     string `gorm:"uniqueIndex:u_config_openid" json:"open_id,omitempty"`
	UnionID    string `gorm:"index" json:"union_id,omitempty"`

	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Gender   Gender `json:"gender,omitempty"`
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`
	Language string `json:"language,omitempty"`

	RawInfo string `json:"-"`

	// AEAD 加密存储
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	BindTime      time.Time  `json:"bind_time,omitempty"`
	LastLoginTime *time.Time `json:"last_login_time,omitempty"`
	LoginCount    uint64     `json:"login_count,omitempty"`
	Status        BindStatus `gorm:"index" json:"status"`
}

// Oauth2BindSummary 对外展示的绑定摘要，不含令牌与原始负载
type Oauth2BindSummary struct {
	ID            uint64     `json:"id,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	PlatformName  string     `json:"platform_name,omitempty"`
	OpenID        string     `json:"open_id,omitempty"`
	Nickname      string     `json:"nickname,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	BindTime      time.Time  `json:"bind_time,omitempty"`
	LastLoginTime *time.Time `json:"last_login_time,omitempty"`
	LoginCount    uint64     `json:"login_count,omitempty"`
}
