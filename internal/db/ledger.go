package db

import (
	"errors"

	"gorm.io/gorm"
)

// 账本记录类型
const (
	TransactionTypeAward           = "AWARD"
	TransactionTypeHabitCompletion = "HABIT_COMPLETION"
	TransactionTypeStarTransaction = "STAR_TRANSACTION"
)

// SystemAccount 表示由系统发放的星星来源。
const SystemAccount = "SYSTEM"

// ErrLedgerImmutable 账本记录写入后不可修改。
var ErrLedgerImmutable = errors.New("ledger entries are immutable")

// Transaction 是星星账本中的一条只追加记录。
// AwardKey 为习惯奖励的幂等键，唯一索引保证同一窗口只发一次星。
type Transaction struct {
	Document
	From           string   `gorm:"size:191;index;not null" json:"from"`
	To             string   `gorm:"size:191;index;not null" json:"to"`
	Amount         int      `gorm:"not null" json:"amount"`
	Type           string   `gorm:"size:32;index;not null" json:"type"`
	Reason         string   `json:"reason"`
	Category       string   `gorm:"size:64" json:"category"`
	Participants   []string `gorm:"serializer:json;type:text" json:"participants"`
	HabitID        *string  `gorm:"size:191;index" json:"habitId,omitempty"`
	CompletedCount *int     `json:"completedCount,omitempty"`
	Status         string   `gorm:"size:32" json:"status,omitempty"`
	AwardKey       *string  `gorm:"size:255;uniqueIndex" json:"-"`
}

// TableName 保持与客户端集合名一致
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeUpdate 拒绝任何对账本记录的修改。
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
