package singleton

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fedgatehq/fedgate/model"
	"github.com/fedgatehq/fedgate/pkg/crypto"
	"github.com/fedgatehq/fedgate/pkg/provider"
)

var Version = "v0.1.0" // 构建时注入

var (
	Cache      *cache.Cache
	CronShared *cron.Cron
	DB         *gorm.DB
	Loc        *time.Location

	SecretBox *crypto.SecretBox

	CredentialShared *CredentialClass
	StateShared      *StateClass
	BindShared       *BindClass
	AuthShared       *AuthClass
)

// InitTimezoneAndCache 初始化时区与进程内缓存
func InitTimezoneAndCache() error {
	var err error
	Loc, err = time.LoadLocation(Conf.Location)
	if err != nil {
		return err
	}
	Cache = cache.New(5*time.Minute, 10*time.Minute)
	CronShared = cron.New(cron.WithSeconds(), cron.WithLocation(Loc))
	return nil
}

// InitDBFromPath 从给出的文件路径打开 SQLite 数据库并迁移表结构
func InitDBFromPath(path string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		CreateBatchSize: 200,
		TranslateError:  true,
	})
	if err != nil {
		return err
	}
	if Conf.Debug {
		DB = DB.Debug()
	} else {
		DB.Logger = DB.Logger.LogMode(logger.Silent)
	}
	return DB.AutoMigrate(
		&model.User{},
		&model.Oauth2Config{},
		&model.Oauth2State{},
		&model.Oauth2Bind{},
		&model.Oauth2LoginLog{},
		&model.WAF{},
	)
}

// LoadSingleton 加载子服务并取得必要信息
func LoadSingleton() error {
	if err := initI18n(); err != nil {
		return err
	}
	var err error
	SecretBox, err = crypto.NewSecretBox(Conf.SecretEncryptionKey)
	if err != nil {
		return err
	}
	provider.RegisterDefaults()

	CredentialShared = NewCredentialClass(DB, Cache, SecretBox, time.Duration(Conf.ConfigCacheTTL)*time.Minute)
	StateShared = NewStateClass(DB)
	BindShared = NewBindClass(DB, SecretBox)
	AuthShared = NewAuthClass(DB, CredentialShared, StateShared, BindShared)
	return nil
}
