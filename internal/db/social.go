package db

import "time"

// Message 是伴侣之间的一条消息，BodyHTML 为净化后的渲染结果
type Message struct {
	Document
	From     string     `gorm:"size:191;index;not null" json:"from"`
	To       string     `gorm:"size:191;index;not null" json:"to"`
	Body     string     `gorm:"type:text;not null" json:"body"`
	BodyHTML string     `gorm:"type:text" json:"bodyHtml"`
	ReadAt   *time.Time `json:"readAt"`
}

// 优惠券状态
const (
	CouponStatusAvailable = "available"
	CouponStatusRedeemed  = "redeemed"
)

// Coupon 由一方创建送给伴侣，兑换时以星星支付
type Coupon struct {
	Document
	From        string     `gorm:"size:191;index;not null" json:"from"`
	To          string     `gorm:"size:191;index;not null" json:"to"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Cost        int        `gorm:"not null;default:0" json:"cost"`
	Status      string     `gorm:"size:16;not null;default:available" json:"status"`
	RedeemedAt  *time.Time `json:"redeemedAt"`
}

// Mood 记录用户每天的心情，owner + date 唯一
type Mood struct {
	Document
	Owner string `gorm:"size:191;not null;index:idx_mood_owner_date,unique" json:"owner"`
	Date  string `gorm:"size:10;not null;index:idx_mood_owner_date,unique" json:"date"`
	Mood  string `gorm:"size:32;not null" json:"mood"`
	Score int    `gorm:"not null" json:"score"`
	Note  string `json:"note"`
}

// 日历事件来源
const (
	CalendarSourceLocal  = "local"
	CalendarSourceGoogle = "google"
)

// CalendarEvent 本地或外部日历同步的事件；外部事件以 owner + external_id 去重
type CalendarEvent struct {
	Document
	Owner       string    `gorm:"size:191;not null;index;index:idx_calendar_owner_external,unique" json:"owner"`
	ExternalID  *string   `gorm:"size:255;index:idx_calendar_owner_external,unique" json:"externalId,omitempty"`
	CalendarID  string    `gorm:"size:255" json:"calendarId,omitempty"`
	Source      string    `gorm:"size:16;not null;default:local" json:"source"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Start       time.Time `gorm:"index" json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
}
