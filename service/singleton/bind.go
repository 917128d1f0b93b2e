package singleton

import (
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/crypto"
	"github.com/fedgatehq/fedgate/pkg/provider"
)

// BindClass 维护绑定台账。所有写入都在调用方给出的事务中执行，
// 令牌与原始负载落库前由 SecretBox 加密。
type BindClass struct {
	db  *gorm.DB
	box *crypto.SecretBox
}

func NewBindClass(db *gorm.DB, box *crypto.SecretBox) *BindClass {
	return &BindClass{db: db, box: box}
}

// FindByConfigOpenID 查找 (config, openid) 对应的台账行，含已解绑的历史行。
// 没有命中时返回 nil。
func (bc *BindClass) FindByConfigOpenID(tx *gorm.DB, configID uint64, openid string) (*model.Oauth2Bind, error) {
	var bind model.Oauth2Bind
	result := tx.Where("config_id = ? AND open_id = ?", configID, openid).Limit(1).Find(&bind)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 {
		return nil, nil
	}
	return &bind, nil
}

// FindByUserConfig 查找 (user, config) 对应的台账行，含已解绑的历史行
func (bc *BindClass) FindByUserConfig(tx *gorm.DB, userID, configID uint64) (*model.Oauth2Bind, error) {
	var bind model.Oauth2Bind
	result := tx.Where("user_id = ? AND config_id = ?", userID, configID).Limit(1).Find(&bind)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 {
		return nil, nil
	}
	return &bind, nil
}

// FindBoundByUserPlatform 查找用户在某平台的生效绑定
func (bc *BindClass) FindBoundByUserPlatform(tx *gorm.DB, userID uint64, platform string) (*model.Oauth2Bind, error) {
	var bind model.Oauth2Bind
	result := tx.Where("user_id = ? AND platform = ? AND status = ?", userID, platform, model.BindStatusBound).
		Limit(1).Find(&bind)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected < 1 {
		return nil, nil
	}
	return &bind, nil
}

// Create 为用户建立新绑定，或恢复复用同键的历史解绑行。
// 唯一索引是并发冲突的最终裁决，冲突由调用方转译为业务错误。
func (bc *BindClass) Create(tx *gorm.DB, userID uint64, cred provider.Credential, identity *provider.Identity) (*model.Oauth2Bind, error) {
	now := time.Now()

	bind, err := bc.FindByConfigOpenID(tx, cred.Config.ID, identity.OpenID)
	if err != nil {
		return nil, err
	}
	if bind == nil {
		// 同一用户在该配置下的历史解绑行也可承载新身份
		bind, err = bc.FindByUserConfig(tx, userID, cred.Config.ID)
		if err != nil {
			return nil, err
		}
	}

	if bind == nil {
		bind = &model.Oauth2Bind{
			UserID:   userID,
			ConfigID: cred.Config.ID,
			Platform: cred.Config.Platform,
		}
	}
	// 历史行换了主人，旧主人的登录足迹不能带给新账号
	if bind.UserID != userID {
		bind.LoginCount = 0
		bind.LastLoginTime = nil
	}
	bind.UserID = userID
	bind.OpenID = identity.OpenID
	bind.BindTime = now
	bind.Status = model.BindStatusBound
	if err := bc.applyIdentity(bind, identity); err != nil {
		return nil, err
	}

	if err := tx.Save(bind).Error; err != nil {
		return nil, err
	}
	return bind, nil
}

// TouchLogin 登录成功后刷新资料快照与登录计数
func (bc *BindClass) TouchLogin(tx *gorm.DB, bind *model.Oauth2Bind, identity *provider.Identity) error {
	now := time.Now()
	bind.LastLoginTime = &now
	bind.LoginCount++
	if err := bc.applyIdentity(bind, identity); err != nil {
		return err
	}
	return tx.Save(bind).Error
}

// Unbind 逻辑解绑，历史行保留
func (bc *BindClass) Unbind(tx *gorm.DB, userID uint64, platform string) (*model.Oauth2Bind, error) {
	bind, err := bc.FindBoundByUserPlatform(tx, userID, platform)
	if err != nil {
		return nil, err
	}
	if bind == nil {
		return nil, newAuthError(ErrKindNotBound, "no active binding for platform %s", platform)
	}
	bind.Status = model.BindStatusUnbound
	if err := tx.Model(bind).Update("status", model.BindStatusUnbound).Error; err != nil {
		return nil, err
	}
	return bind, nil
}

// UpdateTokens 令牌轮换后持久化新令牌
func (bc *BindClass) UpdateTokens(bind *model.Oauth2Bind, pair *provider.TokenPair) error {
	access, err := bc.box.Encrypt(pair.AccessToken)
	if err != nil {
		return err
	}
	updates := map[string]any{"access_token": access}
	bind.AccessToken = access
	if pair.RefreshToken != "" {
		refresh, err := bc.box.Encrypt(pair.RefreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = refresh
		bind.RefreshToken = refresh
	}
	if pair.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second)
		updates["token_expires_at"] = &expiresAt
		bind.TokenExpiresAt = &expiresAt
	}
	return bc.db.Model(bind).Updates(updates).Error
}

// DecryptRefreshToken 取出明文 refresh token，空值表示平台未下发
func (bc *BindClass) DecryptRefreshToken(bind *model.Oauth2Bind) (string, error) {
	if bind.RefreshToken == "" {
		return "", nil
	}
	return bc.box.Decrypt(bind.RefreshToken)
}

// ListSummaries 列出用户的生效绑定摘要，按绑定时间倒序
func (bc *BindClass) ListSummaries(userID uint64) ([]model.Oauth2BindSummary, error) {
	var binds []model.Oauth2Bind
	if err := bc.db.Where("user_id = ? AND status = ?", userID, model.BindStatusBound).
		Order("bind_time DESC").Find(&binds).Error; err != nil {
		return nil, err
	}

	summaries := make([]model.Oauth2BindSummary, 0, len(binds))
	names := make(map[uint64]string)
	for _, b := range binds {
		var s model.Oauth2BindSummary
		if err := copier.Copy(&s, &b); err != nil {
			return nil, err
		}
		name, ok := names[b.ConfigID]
		if !ok {
			var conf model.Oauth2Config
			if result := bc.db.Select("name").Where("id = ?", b.ConfigID).Limit(1).Find(&conf); result.Error == nil && result.RowsAffected > 0 {
				name = conf.Name
			}
			names[b.ConfigID] = name
		}
		s.PlatformName = name
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (bc *BindClass) applyIdentity(bind *model.Oauth2Bind, identity *provider.Identity) error {
	if identity.UnionID != "" {
		bind.UnionID = identity.UnionID
	}
	if identity.Nickname != "" {
		bind.Nickname = identity.Nickname
	}
	if identity.Avatar != "" {
		bind.Avatar = identity.Avatar
	}
	if identity.Gender != model.GenderUnknown {
		bind.Gender = identity.Gender
	}
	if identity.Country != "" {
		bind.Country = identity.Country
	}
	if identity.Province != "" {
		bind.Province = identity.Province
	}
	if identity.City != "" {
		bind.City = identity.City
	}
	if identity.Language != "" {
		bind.Language = identity.Language
	}

	if len(identity.Raw) > 0 {
		raw, err := bc.box.Encrypt(string(identity.Raw))
		if err != nil {
			return err
		}
		bind.RawInfo = raw
	}
	if identity.AccessToken != "" {
		access, err := bc.box.Encrypt(identity.AccessToken)
		if err != nil {
			return err
		}
		bind.AccessToken = access
	}
	if identity.RefreshToken != "" {
		refresh, err := bc.box.Encrypt(identity.RefreshToken)
		if err != nil {
			return err
		}
		bind.RefreshToken = refresh
	}
	if identity.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(identity.ExpiresIn) * time.Second)
		bind.TokenExpiresAt = &expiresAt
	}
	return nil
}
