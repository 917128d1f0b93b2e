package singleton

import (
	"log"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/fedgatehq/fedgate/model"
)

// recordAttempt 异步写入一条审计记录。审计失败不影响主流程，
// 只落一行进程日志。
func recordAttempt(db *gorm.DB, entry *model.Oauth2LoginLog) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("FEDGATE>> record attempt panic: %v", err)
			}
		}()
		if err := db.Create(entry).Error; err != nil {
			log.Printf("FEDGATE>> record attempt failed: %v", err)
		}
	}()
}

// redactJSON 序列化审计快照，仅接受不含敏感字段的结构
func redactJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// SweepLoginLogs 按保留天数清理历史审计记录
func SweepLoginLogs() (int64, error) {
	if Conf.LoginLogRetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -Conf.LoginLogRetentionDays)
	result := DB.Where("created_at < ?", cutoff).Delete(&model.Oauth2LoginLog{})
	return result.RowsAffected, result.Error
}
