package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/twogether/internal/auth"
	"github.com/twogether/internal/db"
	"gorm.io/gorm"
)

const minPasswordLength = 6

// UserService 负责注册、登录、资料与伴侣绑定
type UserService struct {
	db       *gorm.DB
	notifier Notifier
}

// RegisterInput 注册所需字段
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// ProfileInput 更新资料，nil 字段保持不变
type ProfileInput struct {
	DisplayName *string
	Settings    *db.UserSettings
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB, notifier Notifier) *UserService {
	return &UserService{db: gdb, notifier: notifierOrNop(notifier)}
}

// Register 创建新用户，密码以 bcrypt 哈希存储
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*db.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	user := db.User{
		Email:       email,
		DisplayName: displayName,
		Password:    hashed,
		Settings:    db.UserSettings{Theme: "light", Notifications: true},
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Authenticate 校验邮箱与密码
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*db.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	var user db.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalized).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := auth.ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get 根据 uid 获取用户
func (s *UserService) Get(uid string) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// UpdateProfile 更新显示名与偏好设置
func (s *UserService) UpdateProfile(uid string, input ProfileInput) (*db.User, error) {
	user, err := s.Get(uid)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: displayName cannot be empty", ErrInvalidInput)
		}
		updates["display_name"] = name
	}
	if input.Settings != nil {
		settings := *input.Settings
		settings.Theme = strings.TrimSpace(settings.Theme)
		user.Settings = settings
		if err := s.db.Model(user).Select("settings").Updates(&db.User{Settings: settings}).Error; err != nil {
			return nil, fmt.Errorf("update settings: %w", err)
		}
	}
	if len(updates) > 0 {
		if err := s.db.Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.Get(uid)
}

// SetAvatarURL 记录头像地址
func (s *UserService) SetAvatarURL(uid, url string) error {
	result := s.db.Model(&db.User{}).Where("id = ?", uid).Update("avatar_url", url)
	if result.Error != nil {
		return fmt.Errorf("update avatar: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LinkPartner 将 uid 与 partnerEmail 对应的用户互相绑定，双方都必须尚未绑定
func (s *UserService) LinkPartner(ctx context.Context, uid, partnerEmail string) (*db.User, error) {
	email, err := normalizeEmail(partnerEmail)
	if err != nil {
		return nil, err
	}

	var partner db.User
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var self db.User
		if err := tx.First(&self, "id = ?", uid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if err := tx.Where("email = ?", email).First(&partner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load partner: %w", err)
		}
		if partner.ID == self.ID {
			return fmt.Errorf("%w: cannot link to yourself", ErrInvalidInput)
		}
		if self.PartnerID != nil || partner.PartnerID != nil {
			return ErrAlreadyLinked
		}

		if err := tx.Model(&self).Update("partner_id", partner.ID).Error; err != nil {
			return fmt.Errorf("link user: %w", err)
		}
		if err := tx.Model(&partner).Update("partner_id", self.ID).Error; err != nil {
			return fmt.Errorf("link partner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(profileTopic(uid))
	s.notifier.Publish(profileTopic(partner.ID))
	return &partner, nil
}

// UnlinkPartner 解除双方绑定
func (s *UserService) UnlinkPartner(ctx context.Context, uid string) error {
	var partnerID string
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var self db.User
		if err := tx.First(&self, "id = ?", uid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if self.PartnerID == nil {
			return ErrNotLinked
		}
		partnerID = *self.PartnerID

		if err := tx.Model(&db.User{}).
			Where("id IN ?", []string{self.ID, partnerID}).
			Update("partner_id", nil).Error; err != nil {
			return fmt.Errorf("unlink: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(profileTopic(uid))
	s.notifier.Publish(profileTopic(partnerID))
	return nil
}

// PartnerOf 返回 uid 已绑定的伴侣 ID，未绑定时返回 ErrNotLinked
func (s *UserService) PartnerOf(uid string) (string, error) {
	partnerID, err := lookupPartner(s.db, uid)
	if err != nil {
		return "", err
	}
	if partnerID == "" {
		return "", ErrNotLinked
	}
	return partnerID, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}

func profileTopic(uid string) string {
	return "profile:" + uid
}
