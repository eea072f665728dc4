package db

import "time"

// Reminder 是属于单个用户的提醒事项
type Reminder struct {
	Document
	Owner       string     `gorm:"size:191;index;not null" json:"owner"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `gorm:"index" json:"date"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
}
