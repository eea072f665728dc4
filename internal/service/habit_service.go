package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
)

// ErrHabitInvalidGoal 当周目标超出 1..7 时返回
var ErrHabitInvalidGoal = errors.New("invalid weekly goal")

const defaultWeeklyGoal = 7

// HabitService 负责习惯的增删改查与统计
// 每个习惯只属于创建者，所有读写都按 owner 过滤
type HabitService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Search string
}

// HabitInput 定义创建/更新习惯时可配置字段，WeeklyGoal 为 0 时使用默认值 7
type HabitInput struct {
	Title       string
	Description string
	WeeklyGoal  int
}

// HabitStats 汇总基础统计数据
type HabitStats struct {
	RangeStart     time.Time `json:"rangeStart"`
	RangeEnd       time.Time `json:"rangeEnd"`
	CompletedCount int       `json:"completedCount"`
	TargetCount    int       `json:"targetCount"`
	CompletionRate float64   `json:"completionRate"`
	CurrentStreak  int       `json:"currentStreak"`
	LongestStreak  int       `json:"longestStreak"`
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB, clock Clock, notifier Notifier) *HabitService {
	return &HabitService{db: gdb, clock: clock, notifier: notifierOrNop(notifier)}
}

// List 返回 owner 的习惯集合，支持标题搜索
func (s *HabitService) List(owner string, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{}).Where("owner = ?", owner)
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := fmt.Sprintf("%%%s%%", search)
		query = query.Where("title LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at ASC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// Get 根据 ID 获取习惯，非所有者返回 ErrPermissionDenied
func (s *HabitService) Get(owner, id string) (*db.Habit, error) {
	return loadOwnedHabit(s.db, owner, id)
}

// Create 新建习惯
func (s *HabitService) Create(owner string, input HabitInput) (*db.Habit, error) {
	goal, err := validateHabitInput(input)
	if err != nil {
		return nil, err
	}

	habit := db.Habit{
		Owner:       owner,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		WeeklyGoal:  goal,
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	s.notifier.Publish(habitsTopic(owner))
	return &habit, nil
}

// Update 更新习惯标题、描述与周目标
func (s *HabitService) Update(owner, id string, input HabitInput) (*db.Habit, error) {
	goal, err := validateHabitInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := loadOwnedHabit(s.db, owner, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(existing).Updates(map[string]interface{}{
		"title":       strings.TrimSpace(input.Title),
		"description": strings.TrimSpace(input.Description),
		"weekly_goal": goal,
	}).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	s.notifier.Publish(habitsTopic(owner))
	return loadOwnedHabit(s.db, owner, id)
}

// Delete 删除习惯及其每日状态，账本记录保持不变
func (s *HabitService) Delete(owner, id string) error {
	if _, err := loadOwnedHabit(s.db, owner, id); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ? AND owner = ?", id, owner).Delete(&db.DailyStatus{}).Error; err != nil {
			return fmt.Errorf("delete daily status: %w", err)
		}
		if err := tx.Delete(&db.Habit{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(habitsTopic(owner))
	return nil
}

// StatsBetween 计算区间内的完成数、目标完成数及连胜
func (s *HabitService) StatsBetween(owner, id string, start, end time.Time) (*HabitStats, error) {
	habit, err := loadOwnedHabit(s.db, owner, id)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidInput)
	}

	var dates []string
	if err := s.db.Model(&db.DailyStatus{}).
		Where("habit_id = ? AND owner = ? AND done = ?", id, owner, true).
		Where("date BETWEEN ? AND ?", start.Format(dateFormat), end.Format(dateFormat)).
		Order("date ASC").
		Pluck("date", &dates).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}

	stats := &HabitStats{
		RangeStart:     start,
		RangeEnd:       end,
		CompletedCount: len(dates),
		TargetCount:    expectedCount(*habit, start, end),
	}
	if stats.TargetCount <= 0 {
		stats.TargetCount = stats.CompletedCount
	}
	if stats.TargetCount > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TargetCount)
	}

	stats.CurrentStreak, stats.LongestStreak = calculateStreaks(dates, s.clock.Location())

	return stats, nil
}

func loadOwnedHabit(gdb *gorm.DB, owner, id string) (*db.Habit, error) {
	var habit db.Habit
	if err := gdb.First(&habit, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	if habit.Owner != owner {
		return nil, ErrPermissionDenied
	}
	return &habit, nil
}

func validateHabitInput(input HabitInput) (int, error) {
	if strings.TrimSpace(input.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	goal := input.WeeklyGoal
	if goal == 0 {
		goal = defaultWeeklyGoal
	}
	if goal < 1 || goal > 7 {
		return 0, fmt.Errorf("%w: weeklyGoal must be between 1 and 7", ErrHabitInvalidGoal)
	}
	return goal, nil
}

// expectedCount 按周目标折算区间内应完成的天数，不足一周按一周计
func expectedCount(habit db.Habit, start, end time.Time) int {
	if end.Before(start) {
		return 0
	}

	days := int(math.Round(normalizeToDate(end).Sub(normalizeToDate(start)).Hours()/24)) + 1
	weeks := days / 7
	if weeks == 0 {
		weeks = 1
	}
	goal := habit.WeeklyGoal
	if goal <= 0 {
		goal = defaultWeeklyGoal
	}
	return weeks * goal
}

// calculateStreaks 按升序日期键计算当前与最长连续天数
func calculateStreaks(dates []string, loc *time.Location) (current, longest int) {
	if len(dates) == 0 {
		return 0, 0
	}

	longest = 1
	current = 1

	prev, _ := time.ParseInLocation(dateFormat, dates[0], loc)
	for i := 1; i < len(dates); i++ {
		day, err := time.ParseInLocation(dateFormat, dates[i], loc)
		if err != nil {
			continue
		}
		delta := int(math.Round(day.Sub(prev).Hours() / 24))
		if delta == 1 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
		prev = day
	}

	return current, longest
}
