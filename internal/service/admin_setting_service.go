package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminSettings 描述后台可配置的运行参数。
type AdminSettings struct {
	AwardMaxAmount  int    `json:"awardMaxAmount"`
	MaintenanceMode bool   `json:"maintenanceMode"`
	Announcement    string `json:"announcement"`
}

// AdminSettingsInput 用于更新后台设置，nil 字段保持不变。
type AdminSettingsInput struct {
	AwardMaxAmount  *int    `json:"awardMaxAmount"`
	MaintenanceMode *bool   `json:"maintenanceMode"`
	Announcement    *string `json:"announcement"`
}

// AdminSettingService 提供后台设置的读取与更新能力。
type AdminSettingService struct {
	db              *gorm.DB
	defaultAwardMax int
}

// NewAdminSettingService 构造 AdminSettingService，defaultAwardMax 为未覆盖时的 awardStars 上限。
func NewAdminSettingService(gdb *gorm.DB, defaultAwardMax int) *AdminSettingService {
	if defaultAwardMax <= 0 {
		defaultAwardMax = 100
	}
	return &AdminSettingService{db: gdb, defaultAwardMax: defaultAwardMax}
}

var adminKeys = []string{
	db.AdminKeyAwardMaxAmount,
	db.AdminKeyMaintenanceMode,
	db.AdminKeyAnnouncement,
}

// GetSettings 读取后台设置，如未设置将返回默认值。
func (s *AdminSettingService) GetSettings() (AdminSettings, error) {
	result := AdminSettings{AwardMaxAmount: s.defaultAwardMax}

	var records []db.AdminSetting
	if err := s.db.Where("key IN ?", adminKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load admin settings: %w", err)
	}

	for _, record := range records {
		value := strings.TrimSpace(record.Value)
		switch record.Key {
		case db.AdminKeyAwardMaxAmount:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				result.AwardMaxAmount = n
			}
		case db.AdminKeyMaintenanceMode:
			result.MaintenanceMode, _ = strconv.ParseBool(value)
		case db.AdminKeyAnnouncement:
			result.Announcement = record.Value
		}
	}

	return result, nil
}

// UpdateSettings 保存后台设置，返回更新后的完整设置。
func (s *AdminSettingService) UpdateSettings(input AdminSettingsInput) (AdminSettings, error) {
	if input.AwardMaxAmount != nil && *input.AwardMaxAmount <= 0 {
		return AdminSettings{}, fmt.Errorf("%w: awardMaxAmount must be positive", ErrInvalidInput)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if input.AwardMaxAmount != nil {
			if err := upsertAdminSetting(tx, db.AdminKeyAwardMaxAmount, strconv.Itoa(*input.AwardMaxAmount)); err != nil {
				return err
			}
		}
		if input.MaintenanceMode != nil {
			if err := upsertAdminSetting(tx, db.AdminKeyMaintenanceMode, strconv.FormatBool(*input.MaintenanceMode)); err != nil {
				return err
			}
		}
		if input.Announcement != nil {
			if err := upsertAdminSetting(tx, db.AdminKeyAnnouncement, strings.TrimSpace(*input.Announcement)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AdminSettings{}, fmt.Errorf("update admin settings: %w", err)
	}

	return s.GetSettings()
}

// AwardMaxAmount 返回当前生效的 awardStars 上限。
func (s *AdminSettingService) AwardMaxAmount() int {
	settings, err := s.GetSettings()
	if err != nil {
		return s.defaultAwardMax
	}
	return settings.AwardMaxAmount
}

// MaintenanceMode 报告是否处于维护模式。
func (s *AdminSettingService) MaintenanceMode() bool {
	settings, err := s.GetSettings()
	if err != nil {
		return false
	}
	return settings.MaintenanceMode
}

func upsertAdminSetting(tx *gorm.DB, key, value string) error {
	setting := db.AdminSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
