package singleton

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/crypto"
	"github.com/fedgatehq/fedgate/pkg/provider"
)

// CredentialClass 负责平台凭据的检索与解密。
// 同键多条启用配置时取 priority 最大者，priority 相同取最新创建，
// 仍相同取 id 最大，保证选择是确定性的。
type CredentialClass struct {
	db    *gorm.DB
	cache *cache.Cache
	box   *crypto.SecretBox
	ttl   time.Duration
	sf    singleflight.Group
}

func NewCredentialClass(db *gorm.DB, c *cache.Cache, box *crypto.SecretBox, ttl time.Duration) *CredentialClass {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CredentialClass{db: db, cache: c, box: box, ttl: ttl}
}

// Resolve 按 (platform, clientType) 检索启用的配置并解出明文 secret
func (cc *CredentialClass) Resolve(platform, clientType string) (provider.Credential, error) {
	key := model.CacheKeyOauth2Config + platform + "::" + clientType
	if v, ok := cc.cache.Get(key); ok {
		return cc.open(v.(*model.Oauth2Config))
	}

	v, err, _ := cc.sf.Do(key, func() (any, error) {
		var conf model.Oauth2Config
		result := cc.db.Where("platform = ? AND client_type = ? AND enabled = ?", platform, clientType, true).
			Order("priority DESC, created_at DESC, id DESC").Limit(1).Find(&conf)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected < 1 {
			return nil, newAuthError(ErrKindConfigNotFound, "platform %s is not available", platform)
		}
		cc.cache.Set(key, &conf, cc.ttl)
		return &conf, nil
	})
	if err != nil {
		return provider.Credential{}, err
	}
	return cc.open(v.(*model.Oauth2Config))
}

// ResolveByID 按主键检索配置，仅在仍然启用时可用。
// 握手完成阶段使用，避免在发起之后被停用的配置继续放行。
func (cc *CredentialClass) ResolveByID(id uint64) (provider.Credential, error) {
	var conf model.Oauth2Config
	result := cc.db.Where("id = ? AND enabled = ?", id, true).Limit(1).Find(&conf)
	if result.Error != nil {
		return provider.Credential{}, result.Error
	}
	if result.RowsAffected < 1 {
		return provider.Credential{}, newAuthError(ErrKindConfigNotFound, "platform configuration is not available")
	}
	return cc.open(&conf)
}

func (cc *CredentialClass) open(conf *model.Oauth2Config) (provider.Credential, error) {
	secret, err := cc.box.Decrypt(conf.AppSecret)
	if err != nil {
		return provider.Credential{}, err
	}
	return provider.Credential{Config: conf, Secret: secret}, nil
}

// EncryptSecret 管理端写入配置时加密 AppSecret
func (cc *CredentialClass) EncryptSecret(plain string) (string, error) {
	return cc.box.Encrypt(plain)
}

// Invalidate 配置变更后清空读取缓存
func (cc *CredentialClass) Invalidate(platform, clientType string) {
	cc.cache.Delete(model.CacheKeyOauth2Config + platform + "::" + clientType)
}
