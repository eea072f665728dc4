package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document 是所有集合共享的字符串主键与时间戳。
// ID 为空时在创建前自动生成 uuid；需要确定性 ID 的集合（如 DailyStatus）自行赋值。
type Document struct {
	ID        string    `gorm:"primaryKey;size:191" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 补齐缺失的文档 ID。
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DocID 返回文档主键，供批处理按键翻页。
func (d Document) DocID() string {
	return d.ID
}
