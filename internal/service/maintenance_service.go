package service

import (
	"context"
	"fmt"
	"time"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
)

// MaintenanceService 提供基于 BatchApply 的批量维护操作
type MaintenanceService struct {
	db        *gorm.DB
	clock     Clock
	batchSize int
	notifier  Notifier
}

// NewMaintenanceService 构造 MaintenanceService，batchSize 超出上限时按 MaxBatchSize 处理
func NewMaintenanceService(gdb *gorm.DB, clock Clock, batchSize int, notifier Notifier) *MaintenanceService {
	return &MaintenanceService{db: gdb, clock: clock, batchSize: batchSize, notifier: notifierOrNop(notifier)}
}

// ResetStaleWeeklyFlags 复位奖励时间不在本周的 weeklyStarAwarded 标记
func (s *MaintenanceService) ResetStaleWeeklyFlags(ctx context.Context) (int, error) {
	weekStart, _ := WeekRange(s.clock.Now())
	return s.resetHabitFlags(ctx, "weekly_star_awarded", func(h db.Habit) bool {
		return h.WeeklyStarAwardedAt == nil || !withinWeek(*h.WeeklyStarAwardedAt, weekStart)
	})
}

// ResetTodayFlags 复位最后完成日期不是今天的 isTodayComplete 标记
func (s *MaintenanceService) ResetTodayFlags(ctx context.Context) (int, error) {
	today := s.clock.Today()
	return s.resetHabitFlags(ctx, "is_today_complete", func(h db.Habit) bool {
		return h.LastCompletedAt == nil || h.LastCompletedAt.In(s.clock.Location()).Format(dateFormat) != today
	})
}

// resetHabitFlags 将 column 为 true 且 stale 判定为过期的习惯复位为 false
// 计数与通知只在批次提交后进行
func (s *MaintenanceService) resetHabitFlags(ctx context.Context, column string, stale func(db.Habit) bool) (int, error) {
	reset := 0
	var owners []string
	_, err := BatchApplyCommitted(ctx, s.db, func(q *gorm.DB) *gorm.DB {
		return q.Where(column+" = ?", true)
	}, s.batchSize, func(tx *gorm.DB, batch []db.Habit) error {
		targets := staleHabits(batch, stale)
		if len(targets) == 0 {
			return nil
		}
		if err := tx.Model(&db.Habit{}).Where("id IN ?", ids(targets)).Update(column, false).Error; err != nil {
			return fmt.Errorf("reset %s: %w", column, err)
		}
		return nil
	}, func(batch []db.Habit) {
		for _, h := range staleHabits(batch, stale) {
			reset++
			owners = append(owners, h.Owner)
		}
	})
	// 已提交的批次即使后续失败也需要通知
	s.publishHabits(owners)
	return reset, err
}

func staleHabits(batch []db.Habit, stale func(db.Habit) bool) []db.Habit {
	out := make([]db.Habit, 0, len(batch))
	for _, h := range batch {
		if stale(h) {
			out = append(out, h)
		}
	}
	return out
}

// PurgeTransactionsBefore 批量删除早于 before 的账本记录，仅供管理员清理使用
func (s *MaintenanceService) PurgeTransactionsBefore(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("%w: cutoff is required", ErrInvalidInput)
	}
	return BatchApply(ctx, s.db, func(q *gorm.DB) *gorm.DB {
		return q.Where("created_at < ?", before)
	}, s.batchSize, func(tx *gorm.DB, batch []db.Transaction) error {
		return tx.Where("id IN ?", ids(batch)).Delete(&db.Transaction{}).Error
	})
}

// PurgeUserReport 汇总删除用户时各集合删除的文档数
type PurgeUserReport struct {
	DailyStatus    int `json:"dailyStatus"`
	Habits         int `json:"habits"`
	Reminders      int `json:"reminders"`
	Moods          int `json:"moods"`
	CalendarEvents int `json:"calendarEvents"`
	Messages       int `json:"messages"`
	Coupons        int `json:"coupons"`
}

// PurgeUser 删除用户及其拥有的全部文档，账本记录保留；伴侣绑定同时解除
func (s *MaintenanceService) PurgeUser(ctx context.Context, uid string) (*PurgeUserReport, error) {
	var user db.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", uid).Error; err != nil {
		return nil, ErrUserNotFound
	}

	report := &PurgeUserReport{}
	var err error
	byOwner := func(q *gorm.DB) *gorm.DB { return q.Where("owner = ?", uid) }
	byParty := func(q *gorm.DB) *gorm.DB { return q.Where(`"from" = ? OR "to" = ?`, uid, uid) }

	if report.DailyStatus, err = purgeAll[db.DailyStatus](ctx, s.db, byOwner, s.batchSize); err != nil {
		return nil, err
	}
	if report.Habits, err = purgeAll[db.Habit](ctx, s.db, byOwner, s.batchSize); err != nil {
		return nil, err
	}
	if report.Reminders, err = purgeAll[db.Reminder](ctx, s.db, byOwner, s.batchSize); err != nil {
		return nil, err
	}
	if report.Moods, err = purgeAll[db.Mood](ctx, s.db, byOwner, s.batchSize); err != nil {
		return nil, err
	}
	if report.CalendarEvents, err = purgeAll[db.CalendarEvent](ctx, s.db, byOwner, s.batchSize); err != nil {
		return nil, err
	}
	if report.Messages, err = purgeAll[db.Message](ctx, s.db, byParty, s.batchSize); err != nil {
		return nil, err
	}
	if report.Coupons, err = purgeAll[db.Coupon](ctx, s.db, byParty, s.batchSize); err != nil {
		return nil, err
	}

	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&db.User{}).Where("partner_id = ?", uid).Update("partner_id", nil).Error; err != nil {
			return fmt.Errorf("unlink partner: %w", err)
		}
		if err := tx.Delete(&db.User{}, "id = ?", uid).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func purgeAll[T Identified](ctx context.Context, gdb *gorm.DB, scope func(*gorm.DB) *gorm.DB, size int) (int, error) {
	return BatchApply(ctx, gdb, scope, size, func(tx *gorm.DB, batch []T) error {
		return tx.Where("id IN ?", ids(batch)).Delete(new(T)).Error
	})
}

func (s *MaintenanceService) publishHabits(owners []string) {
	seen := make(map[string]struct{}, len(owners))
	for _, owner := range owners {
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}
		s.notifier.Publish(habitsTopic(owner))
	}
}
