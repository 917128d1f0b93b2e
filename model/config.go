package model

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	kmaps "github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"sigs.k8s.io/yaml"

	"github.com/fedgatehq/fedgate/pkg/utils"
)

type Config struct {
	Language string `koanf:"language" json:"language"` // 系统语言，默认 zh_CN
	SiteName string `koanf:"site_name" json:"site_name"`

	Debug    bool   `koanf:"debug" json:"debug,omitempty"`
	Location string `koanf:"location" json:"location,omitempty"` // 时区，默认为 Asia/Shanghai

	ListenPort uint16 `koanf:"listen_port" json:"listen_port,omitempty"`
	ListenHost string `koanf:"listen_host" json:"listen_host,omitempty"`

	JWTSecretKey string `koanf:"jwt_secret_key" json:"jwt_secret_key,omitempty"`
	JWTTimeout   int    `koanf:"jwt_timeout" json:"jwt_timeout,omitempty"` // JWT token过期时间（小时）

	WebRealIPHeader string `koanf:"web_real_ip_header" json:"web_real_ip_header,omitempty"` // 前端真实IP

	// SecretEncryptionKey 用于应用密钥/令牌落库加密的 256 bit 密钥（hex）
	SecretEncryptionKey string `koanf:"secret_encryption_key" json:"secret_encryption_key,omitempty"`

	// 配置读缓存的过期时间（分钟），管理端改动后的最大陈旧窗口
	ConfigCacheTTL int `koanf:"config_cache_ttl" json:"config_cache_ttl,omitempty"`

	// 过期握手记录的清理周期（cron 表达式，含秒域）
	StateSweepSpec string `koanf:"state_sweep_spec" json:"state_sweep_spec,omitempty"`
	// 审计日志保留天数，0 表示不清理
	LoginLogRetentionDays int `koanf:"login_log_retention_days" json:"login_log_retention_days,omitempty"`

	k        *koanf.Koanf `json:"-"`
	filePath string       `json:"-"`
}

// Read 读取配置文件并应用
func (c *Config) Read(path string) error {
	c.k = koanf.New(".")
	c.filePath = path

	err := c.k.Load(env.Provider("FG_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "FG_")), "_", ".")
	}), nil)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		err = c.k.Load(file.Provider(path), new(utils.KubeYAML), koanf.WithMergeFunc(mergeDedup))
		if err != nil {
			return err
		}
	}

	err = c.k.UnmarshalWithConf("", c, koanfConf(c))
	if err != nil {
		return err
	}

	if c.ListenPort == 0 {
		c.ListenPort = 8008
	}
	if c.Language == "" {
		c.Language = "zh_CN"
	}
	if c.Location == "" {
		c.Location = "Asia/Shanghai"
	}
	if c.SiteName == "" {
		c.SiteName = "FedGate"
	}
	if c.JWTTimeout == 0 {
		c.JWTTimeout = 1
	}
	if c.ConfigCacheTTL == 0 {
		c.ConfigCacheTTL = 60
	}
	if c.StateSweepSpec == "" {
		c.StateSweepSpec = "0 */5 * * * *"
	}
	if c.JWTSecretKey == "" {
		c.JWTSecretKey, err = utils.GenerateRandomString(1024)
		if err != nil {
			return err
		}
		if err = c.Save(); err != nil {
			return err
		}
	}
	if c.SecretEncryptionKey == "" {
		c.SecretEncryptionKey, err = utils.GenerateRandomHex(32)
		if err != nil {
			return err
		}
		if err = c.Save(); err != nil {
			return err
		}
	}

	return nil
}

// Save 保存配置文件
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return c.write(data)
}

func (c *Config) write(data []byte) error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0600)
}

func koanfConf(c any) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				utils.TextUnmarshalerHookFunc()),
			Metadata:         nil,
			Result:           c,
			WeaklyTypedInput: true,
		},
	}
}

func mergeDedup(src, dest map[string]any) error {
	kmaps.Merge(src, dest)
	return nil
}
