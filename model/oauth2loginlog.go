package model

import "time"

const (
	Oauth2LogActionLogin   = "login"
	Oauth2LogActionBind    = "bind"
	Oauth2LogActionUnbind  = "unbind"
	Oauth2LogActionRefresh = "refresh"
)

// Oauth2LoginLog 每次授权尝试的审计记录，只追加，核心从不改写或删除。
type Oauth2LoginLog struct {
	ID        uint64    `gorm:"primaryKey" json:"id,omitempty"`
	CreatedAt time.Time `gorm:"index;<-:create" json:"created_at,omitempty"`

	UserID     uint64 `gorm:"index" json:"user_id,omitempty"`
	Platform   string `gorm:"index" json:"platform,omitempty"`
	ClientType string `json:"client_type,omitempty"`
	Action     string `json:"action,omitempty"`
	OpenID     string `json:"open_id,omitempty"`

	Success      bool   `gorm:"index" json:"success"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// 脱敏后的请求/响应快照（JSON），不含 code、令牌与密钥
	RequestData  string `json:"request_data,omitempty"`
	ResponseData string `json:"response_data,omitempty"`
}
