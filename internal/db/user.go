package db

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserSettings 保存用户偏好，以 JSON 形式落库。
type UserSettings struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	Timezone      string `json:"timezone,omitempty"`
}

// User 定义了用户模型，ID 即认证 uid。
// Stars 只能与一条账本记录在同一事务内变更。
type User struct {
	Document
	Email       string       `gorm:"size:191;uniqueIndex;not null" json:"email"`
	DisplayName string       `json:"displayName"`
	Password    string       `gorm:"not null" json:"-"`
	Stars       int          `gorm:"not null;default:0" json:"stars"`
	PartnerID   *string      `gorm:"size:191;index" json:"partnerId"`
	IsAdmin     bool         `gorm:"not null;default:false" json:"isAdmin"`
	AvatarURL   string       `json:"avatarUrl"`
	Settings    UserSettings `gorm:"serializer:json;type:text" json:"settings"`
}

// EnsureAdmin 存在性检查：若邮箱与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的管理员。
func EnsureAdmin(gdb *gorm.DB, email, password string) error {
	trimmedEmail := strings.ToLower(strings.TrimSpace(email))
	trimmedPassword := strings.TrimSpace(password)
	if trimmedEmail == "" || trimmedPassword == "" {
		return nil
	}

	if gdb == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := gdb.Where("email = ?", trimmedEmail).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return gdb.Create(&User{
			Email:       trimmedEmail,
			DisplayName: "admin",
			Password:    string(hashed),
			IsAdmin:     true,
		}).Error
	}

	if !existing.IsAdmin {
		return gdb.Model(&existing).Update("is_admin", true).Error
	}
	return nil
}
