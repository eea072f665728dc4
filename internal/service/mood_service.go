package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var moodScores = map[string]int{
	"awful": 1,
	"sad":   2,
	"okay":  3,
	"good":  4,
	"great": 5,
}

// MoodService 记录每日心情，同一天重复记录会覆盖
type MoodService struct {
	db    *gorm.DB
	clock Clock
}

// MoodInput 记录心情所需字段；Date 为空时取今天
type MoodInput struct {
	Date string
	Mood string
	Note string
}

// NewMoodService 构造 MoodService
func NewMoodService(gdb *gorm.DB, clock Clock) *MoodService {
	return &MoodService{db: gdb, clock: clock}
}

// Record 幂等写入 owner 某天的心情
func (s *MoodService) Record(ctx context.Context, owner string, input MoodInput) (*db.Mood, error) {
	mood := strings.ToLower(strings.TrimSpace(input.Mood))
	score, ok := moodScores[mood]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported mood %q", ErrInvalidInput, input.Mood)
	}

	dateKey := s.clock.Today()
	if strings.TrimSpace(input.Date) != "" {
		key, _, err := ParseDateKey(input.Date, s.clock.Location())
		if err != nil {
			return nil, err
		}
		dateKey = key
	}

	record := db.Mood{
		Owner: owner,
		Date:  dateKey,
		Mood:  mood,
		Score: score,
		Note:  strings.TrimSpace(input.Note),
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"mood", "score", "note", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("upsert mood: %w", err)
	}

	var stored db.Mood
	if err := s.db.WithContext(ctx).Where("owner = ? AND date = ?", owner, dateKey).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload mood: %w", err)
	}
	return &stored, nil
}

// List 返回 owner 在区间内的心情；viewer 必须是 owner 本人或其伴侣
func (s *MoodService) List(viewer, owner string, start, end time.Time) ([]db.Mood, error) {
	if owner == "" {
		owner = viewer
	}
	if viewer != owner {
		partnerID, err := lookupPartner(s.db, viewer)
		if err != nil {
			return nil, err
		}
		if partnerID != owner {
			return nil, ErrPermissionDenied
		}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidInput)
	}

	var moods []db.Mood
	if err := s.db.Where("owner = ?", owner).
		Where("date BETWEEN ? AND ?", start.Format(dateFormat), end.Format(dateFormat)).
		Order("date ASC").
		Find(&moods).Error; err != nil {
		return nil, fmt.Errorf("list moods: %w", err)
	}
	return moods, nil
}
