package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
)

// ReminderService 管理提醒事项，所有修改都校验所有者
type ReminderService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
}

// ReminderInput 创建提醒所需字段
type ReminderInput struct {
	Title       string
	Description string
	Date        string
}

// ReminderPatch 更新提醒，nil 字段保持不变
type ReminderPatch struct {
	Title       *string
	Description *string
	Date        *string
	Completed   *bool
}

// NewReminderService 构造 ReminderService
func NewReminderService(gdb *gorm.DB, clock Clock, notifier Notifier) *ReminderService {
	return &ReminderService{db: gdb, clock: clock, notifier: notifierOrNop(notifier)}
}

// Create 为 owner 新建提醒
func (s *ReminderService) Create(ctx context.Context, owner string, input ReminderInput) (*db.Reminder, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	date, err := parseTimestamp(input.Date, s.clock.Location())
	if err != nil {
		return nil, err
	}

	reminder := db.Reminder{
		Owner:       owner,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Date:        date,
	}
	if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	s.notifier.Publish(remindersTopic(owner))
	return &reminder, nil
}

// Update 修改提醒字段；先校验归属再校验字段，非所有者总是得到 ErrPermissionDenied 且不做任何修改
func (s *ReminderService) Update(ctx context.Context, caller, id string, patch ReminderPatch) (*db.Reminder, error) {
	var reminder db.Reminder
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		found, err := loadOwnedReminder(tx, caller, id)
		if err != nil {
			return err
		}
		updates, err := s.patchUpdates(patch)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(found).Updates(updates).Error; err != nil {
				return fmt.Errorf("update reminder: %w", err)
			}
		}
		return tx.First(&reminder, "id = ?", found.ID).Error
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(remindersTopic(caller))
	return &reminder, nil
}

func (s *ReminderService) patchUpdates(patch ReminderPatch) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Date != nil {
		date, err := parseTimestamp(*patch.Date, s.clock.Location())
		if err != nil {
			return nil, err
		}
		updates["date"] = date
	}
	if patch.Completed != nil {
		updates["completed"] = *patch.Completed
		updates["completed_at"] = s.completedAt(*patch.Completed)
	}
	return updates, nil
}

// Toggle 设置提醒完成状态
func (s *ReminderService) Toggle(ctx context.Context, caller, id string, completed bool) (*db.Reminder, error) {
	return s.Update(ctx, caller, id, ReminderPatch{Completed: &completed})
}

// Delete 删除提醒，非所有者返回 ErrPermissionDenied
func (s *ReminderService) Delete(ctx context.Context, caller, id string) error {
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		found, err := loadOwnedReminder(tx, caller, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(found).Error; err != nil {
			return fmt.Errorf("delete reminder: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(remindersTopic(caller))
	return nil
}

// List 返回 owner 的提醒，按日期升序；includeCompleted 为 false 时只返回未完成项
func (s *ReminderService) List(owner string, includeCompleted bool) ([]db.Reminder, error) {
	query := s.db.Where("owner = ?", owner)
	if !includeCompleted {
		query = query.Where("completed = ?", false)
	}
	var reminders []db.Reminder
	if err := query.Order("date ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

func (s *ReminderService) completedAt(completed bool) interface{} {
	if !completed {
		return nil
	}
	return s.clock.Now()
}

func loadOwnedReminder(tx *gorm.DB, caller, id string) (*db.Reminder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	var reminder db.Reminder
	if err := tx.First(&reminder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	if reminder.Owner != caller {
		return nil, ErrPermissionDenied
	}
	return &reminder, nil
}

func remindersTopic(uid string) string {
	return "reminders:" + uid
}

// OverdueCount 返回截至 now 仍未完成的提醒数
func (s *ReminderService) OverdueCount(owner string, now time.Time) (int64, error) {
	var count int64
	if err := s.db.Model(&db.Reminder{}).
		Where("owner = ? AND completed = ? AND date < ?", owner, false, now).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count overdue reminders: %w", err)
	}
	return count, nil
}
