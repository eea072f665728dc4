package db

import "time"

// AdminSetting 存储后台可配置的系统级键值对。
type AdminSetting struct {
	Key       string `gorm:"primaryKey;size:100"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName 自定义表名以保持命名一致。
func (AdminSetting) TableName() string {
	return "admin"
}

const (
	// AdminKeyAwardMaxAmount 覆盖单次 awardStars 的上限。
	AdminKeyAwardMaxAmount = "award_max_amount"
	// AdminKeyMaintenanceMode 为 "true" 时拒绝可调用函数。
	AdminKeyMaintenanceMode = "maintenance_mode"
	// AdminKeyAnnouncement 客户端展示的公告。
	AdminKeyAnnouncement = "announcement"
)
