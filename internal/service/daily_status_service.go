package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twogether/internal/db"
	"github.com/twogether/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyStatusService 负责每日完成状态的切换与周目标奖励
// 每次切换在单个事务内完成：写状态、重算本周完成数、按幂等键发星
type DailyStatusService struct {
	db       *gorm.DB
	clock    Clock
	policy   string
	notifier Notifier
}

// DailyStatusOptions 汇总可选依赖
type DailyStatusOptions struct {
	Clock    Clock
	Policy   string
	Notifier Notifier
}

// ToggleResult 是一次状态切换后的结果
type ToggleResult struct {
	Status            db.DailyStatus `json:"status"`
	Habit             db.Habit       `json:"habit"`
	WeeklyCompletions int            `json:"weeklyCompletions"`
	Awarded           bool           `json:"awarded"`
}

// WeekView 是某习惯在一周内的完成情况
type WeekView struct {
	HabitID     string           `json:"habitId"`
	WeekStart   string           `json:"weekStart"`
	WeekEnd     string           `json:"weekEnd"`
	WeeklyGoal  int              `json:"weeklyGoal"`
	Completions int              `json:"completions"`
	Days        []db.DailyStatus `json:"days"`
}

// NewDailyStatusService 构造 DailyStatusService
func NewDailyStatusService(gdb *gorm.DB, opts DailyStatusOptions) *DailyStatusService {
	return &DailyStatusService{
		db:       gdb,
		clock:    opts.Clock,
		policy:   normalizePolicy(opts.Policy),
		notifier: notifierOrNop(opts.Notifier),
	}
}

// ToggleStatus 按客户端传入的当前状态取反
func (s *DailyStatusService) ToggleStatus(ctx context.Context, caller, habitID, rawDate string, currentStatus bool) (*ToggleResult, error) {
	return s.SetStatus(ctx, caller, habitID, rawDate, !currentStatus)
}

// SetStatus 将 (habit, date, caller) 的完成状态设置为 done
func (s *DailyStatusService) SetStatus(ctx context.Context, caller, habitID, rawDate string, done bool) (*ToggleResult, error) {
	habitID = strings.TrimSpace(habitID)
	if habitID == "" {
		return nil, fmt.Errorf("%w: habitId is required", ErrInvalidInput)
	}
	dateKey, day, err := ParseDateKey(rawDate, s.clock.Location())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	todayKey := now.Format(dateFormat)
	currentWeekStart, _ := WeekRange(now)
	weekStart, weekEnd := WeekRange(day)

	var result ToggleResult
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var habit db.Habit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&habit, "id = ?", habitID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHabitNotFound
			}
			return fmt.Errorf("load habit: %w", err)
		}
		if habit.Owner != caller {
			return ErrPermissionDenied
		}

		var others int64
		if err := tx.Model(&db.DailyStatus{}).
			Where("habit_id = ? AND owner = ? AND done = ?", habitID, caller, true).
			Where("date BETWEEN ? AND ? AND date <> ?", weekStart.Format(dateFormat), weekEnd.Format(dateFormat), dateKey).
			Count(&others).Error; err != nil {
			return fmt.Errorf("count weekly completions: %w", err)
		}
		completions := int(others)
		if done {
			completions++
		}

		status := db.DailyStatus{
			Document: db.Document{ID: db.DailyStatusID(habitID, dateKey, caller)},
			HabitID:  habitID,
			Owner:    caller,
			Date:     dateKey,
			Done:     done,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"done", "updated_at"}),
		}).Create(&status).Error; err != nil {
			return fmt.Errorf("upsert daily status: %w", err)
		}

		// 只有标记为完成时才可能新达到周目标
		awarded := false
		if done && habit.WeeklyGoal > 0 && completions >= habit.WeeklyGoal {
			partnerID, err := lookupPartner(tx, caller)
			if err != nil {
				return err
			}
			awarded, err = awardHabitStar(tx, habitAward{
				Key:        awardKey(s.policy, habitID, caller, weekStart, now),
				HabitID:    habitID,
				HabitTitle: habit.Title,
				Owner:      caller,
				PartnerID:  partnerID,
				Completed:  completions,
			})
			if err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if dateKey == todayKey {
			updates["is_today_complete"] = done
			if done {
				updates["last_completed_at"] = now
			}
		}
		switch {
		case awarded && weekStart.Equal(currentWeekStart):
			updates["weekly_star_awarded"] = true
			updates["weekly_star_awarded_at"] = now
		case habit.WeeklyStarAwarded && (habit.WeeklyStarAwardedAt == nil || !withinWeek(*habit.WeeklyStarAwardedAt, currentWeekStart)):
			updates["weekly_star_awarded"] = false
		}
		if err := tx.Model(&habit).Updates(updates).Error; err != nil {
			return fmt.Errorf("update habit: %w", err)
		}

		if err := tx.First(&result.Habit, "id = ?", habitID).Error; err != nil {
			return fmt.Errorf("reload habit: %w", err)
		}
		if err := tx.First(&result.Status, "id = ?", status.ID).Error; err != nil {
			return fmt.Errorf("reload daily status: %w", err)
		}
		result.WeeklyCompletions = completions
		result.Awarded = awarded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(habitsTopic(caller))
	if result.Awarded {
		metrics.RecordStarsCredited(db.TransactionTypeHabitCompletion, 1)
		s.notifier.Publish(starsTopic(caller))
	}
	return &result, nil
}

// Week 返回包含 rawDate 的那一周的完成情况，rawDate 为空时取今天
func (s *DailyStatusService) Week(caller, habitID, rawDate string) (*WeekView, error) {
	habit, err := loadOwnedHabit(s.db, caller, habitID)
	if err != nil {
		return nil, err
	}

	day := normalizeToDate(s.clock.Now())
	if strings.TrimSpace(rawDate) != "" {
		if _, day, err = ParseDateKey(rawDate, s.clock.Location()); err != nil {
			return nil, err
		}
	}
	start, end := WeekRange(day)

	days, err := s.ListBetween(caller, habit.ID, start, end)
	if err != nil {
		return nil, err
	}

	view := &WeekView{
		HabitID:    habit.ID,
		WeekStart:  start.Format(dateFormat),
		WeekEnd:    end.Format(dateFormat),
		WeeklyGoal: habit.WeeklyGoal,
		Days:       days,
	}
	for _, d := range days {
		if d.Done {
			view.Completions++
		}
	}
	return view, nil
}

// ListBetween 返回区间内的每日状态（含未完成）
func (s *DailyStatusService) ListBetween(owner, habitID string, start, end time.Time) ([]db.DailyStatus, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidInput)
	}
	var statuses []db.DailyStatus
	if err := s.db.Where("habit_id = ? AND owner = ?", habitID, owner).
		Where("date BETWEEN ? AND ?", start.Format(dateFormat), end.Format(dateFormat)).
		Order("date ASC").
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("list daily status: %w", err)
	}
	return statuses, nil
}

func lookupPartner(tx *gorm.DB, uid string) (string, error) {
	var user db.User
	if err := tx.Select("id", "partner_id").First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if user.PartnerID == nil {
		return "", nil
	}
	return *user.PartnerID, nil
}
