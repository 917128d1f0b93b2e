package model

import (
	"encoding/hex"
	"time"

	"github.com/hashicorp/go-uuid"
)

const (
	Oauth2ActionLogin = "login"
	Oauth2ActionBind  = "bind"
)

const (
	// Oauth2StateTTL 授权握手的有效窗口
	Oauth2StateTTL = 15 * time.Minute

	stateTokenBytes = 16
)

// Oauth2State 一次授权握手的关联记录，token 全局唯一且一次性。
// 有效当且仅当未过期且 consumed_at 为空；消费必须是原子的条件更新。
type Oauth2State struct {
	ID        uint64    `gorm:"primaryKey" json:"id,omitempty"`
	CreatedAt time.Time `gorm:"index;<-:create" json:"created_at,omitempty"`

	Token      string `gorm:"uniqueIndex;type:char(32)" json:"token,omitempty"`
	ConfigID   uint64 `json:"config_id,omitempty"`
	Platform   string `json:"platform,omitempty"`
	ClientType string `json:"client_type,omitempty"`
	Action     string `json:"action,omitempty"`
	UserID     uint64 `json:"user_id,omitempty"`

	RedirectURL string `json:"redirect_url,omitempty"`
	ExtraData   string `json:"extra_data,omitempty"`
	IP          string `json:"ip,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`

	ExpiresAt  time.Time  `gorm:"index" json:"expires_at,omitempty"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

func (s *Oauth2State) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Oauth2State) IsConsumed() bool {
	return s.ConsumedAt != nil
}

func (s *Oauth2State) IsValid(now time.Time) bool {
	return !s.IsExpired(now) && !s.IsConsumed()
}

// GenerateStateToken 生成 128 bit 熵的一次性 token
func GenerateStateToken() (string, error) {
	b, err := uuid.GenerateRandomBytes(stateTokenBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
