package db

import (
	"fmt"
	"time"
)

// Habit 定义了习惯（accountability）模型
// WeeklyGoal 为每周需完成的天数；WeeklyStarAwarded/WeeklyStarAwardedAt 缓存本周是否已发星
// IsTodayComplete 缓存今天的完成状态，跨天由定时任务复位
type Habit struct {
	Document
	Owner               string     `gorm:"size:191;index;not null" json:"owner"`
	Title               string     `gorm:"not null" json:"title"`
	Description         string     `json:"description"`
	WeeklyGoal          int        `gorm:"not null;default:7" json:"weeklyGoal"`
	WeeklyStarAwarded   bool       `gorm:"not null;default:false" json:"weeklyStarAwarded"`
	WeeklyStarAwardedAt *time.Time `json:"weeklyStarAwardedAt"`
	IsTodayComplete     bool       `gorm:"not null;default:false" json:"isTodayComplete"`
	LastCompletedAt     *time.Time `json:"lastCompletedAt"`
}

// TableName 保持与客户端集合名一致
func (Habit) TableName() string {
	return "accountability"
}

// DailyStatus 记录某习惯在某天的完成情况
// ID 固定为 habitId_date_owner，并由 habit_id + owner + date 唯一索引兜底
type DailyStatus struct {
	Document
	HabitID string `gorm:"size:191;not null;index;index:idx_daily_status_unique,unique" json:"habitId"`
	Owner   string `gorm:"size:191;not null;index:idx_daily_status_unique,unique" json:"owner"`
	Date    string `gorm:"size:10;not null;index:idx_daily_status_unique,unique" json:"date"`
	Done    bool   `gorm:"not null;default:false" json:"done"`
	Notes   string `json:"notes,omitempty"`
}

// TableName 重写确保唯一索引作用到 daily_status
func (DailyStatus) TableName() string {
	return "daily_status"
}

// DailyStatusID 返回 (habit, date, owner) 对应的确定性文档 ID。
func DailyStatusID(habitID, date, owner string) string {
	return fmt.Sprintf("%s_%s_%s", habitID, date, owner)
}
