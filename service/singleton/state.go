package singleton

import (
	"time"

	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
)

// StateClass 管理授权握手的一次性 state。
// token 在有效窗口内至多被消费一次，消费走条件更新，由数据库裁决
// 并发下的唯一赢家。
type StateClass struct {
	db *gorm.DB
}

func NewStateClass(db *gorm.DB) *StateClass {
	return &StateClass{db: db}
}

type IssueStateRequest struct {
	ConfigID   uint64
	Platform   string
	ClientType string
	Action     string
	UserID     uint64

	RedirectURL string
	ExtraData   string
	IP          string
	UserAgent   string
}

// Issue 签发一条新的握手记录
func (sc *StateClass) Issue(req *IssueStateRequest) (*model.Oauth2State, error) {
	token, err := model.GenerateStateToken()
	if err != nil {
		return nil, err
	}
	state := &model.Oauth2State{
		Token:       token,
		ConfigID:    req.ConfigID,
		Platform:    req.Platform,
		ClientType:  req.ClientType,
		Action:      req.Action,
		UserID:      req.UserID,
		RedirectURL: req.RedirectURL,
		ExtraData:   req.ExtraData,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		ExpiresAt:   time.Now().Add(model.Oauth2StateTTL),
	}
	if err := sc.db.Create(state).Error; err != nil {
		return nil, err
	}
	return state, nil
}

// Validate 读取并校验 token，但不消费。
// 不存在、已过期、已消费对调用方折叠为同一种无效错误。
func (sc *StateClass) Validate(token string) (*model.Oauth2State, error) {
	if token == "" {
		return nil, newAuthError(ErrKindStateInvalid, "state is invalid or expired")
	}
	var state model.Oauth2State
	result := sc.db.Where("token = ?", token).Limit(1).Find(&state)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 || !state.IsValid(time.Now()) {
		return nil, newAuthError(ErrKindStateInvalid, "state is invalid or expired")
	}
	return &state, nil
}

// Consume 原子消费 token。并发调用下仅有一个调用方得到 true，
// 其余以及过期、已消费的 token 均得到 false。
func (sc *StateClass) Consume(token string) (bool, error) {
	now := time.Now()
	result := sc.db.Model(&model.Oauth2State{}).
		Where("token = ? AND consumed_at IS NULL AND expires_at > ?", token, now).
		Update("consumed_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Sweep 清理已过期与已消费的历史记录，返回删除行数
func (sc *StateClass) Sweep() (int64, error) {
	result := sc.db.Where("expires_at <= ? OR consumed_at IS NOT NULL", time.Now()).
		Delete(&model.Oauth2State{})
	return result.RowsAffected, result.Error
}
