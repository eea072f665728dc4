package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService 管理星星余额与只追加账本
// 所有余额变化都与一条账本记录在同一事务内写入
type LedgerService struct {
	db       *gorm.DB
	clock    Clock
	policy   string
	settings *AdminSettingService
	notifier Notifier
}

// LedgerOptions 汇总账本服务的可选依赖
type LedgerOptions struct {
	Clock    Clock
	Policy   string
	Settings *AdminSettingService
	Notifier Notifier
}

// NewLedgerService 构造 LedgerService
func NewLedgerService(gdb *gorm.DB, opts LedgerOptions) *LedgerService {
	settings := opts.Settings
	if settings == nil {
		settings = NewAdminSettingService(gdb, 0)
	}
	return &LedgerService{
		db:       gdb,
		clock:    opts.Clock,
		policy:   normalizePolicy(opts.Policy),
		settings: settings,
		notifier: notifierOrNop(opts.Notifier),
	}
}

// DayStatus 是客户端提交的单日完成情况
type DayStatus struct {
	Date string `json:"date"`
	Done bool   `json:"done"`
}

// WeeklyAwardInput 描述一次周目标奖励判定
type WeeklyAwardInput struct {
	HabitID     string
	UserID      string
	PartnerID   string
	WeeklyGoal  int
	HabitTitle  string
	DailyStatus []DayStatus
}

// habitAward 是发放一颗习惯星所需的全部信息
type habitAward struct {
	Key        string
	HabitID    string
	HabitTitle string
	Owner      string
	PartnerID  string
	Completed  int
}

// AwardStars 由 caller 向 toUserID 赠送星星，amount 必须在 [1, 上限] 内
func (s *LedgerService) AwardStars(ctx context.Context, caller, toUserID string, amount int, reason string) (*db.Transaction, error) {
	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		return nil, fmt.Errorf("%w: toUserId is required", ErrInvalidInput)
	}
	if toUserID == caller {
		return nil, fmt.Errorf("%w: cannot award stars to yourself", ErrInvalidInput)
	}
	limit := s.settings.AwardMaxAmount()
	if amount <= 0 || amount > limit {
		return nil, fmt.Errorf("%w: amount must be between 1 and %d", ErrInvalidInput, limit)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Star award"
	}

	entry := db.Transaction{
		From:         caller,
		To:           toUserID,
		Amount:       amount,
		Type:         db.TransactionTypeAward,
		Reason:       reason,
		Category:     "award",
		Participants: []string{caller, toUserID},
		Status:       "completed",
	}

	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create award entry: %w", err)
		}
		return adjustStars(tx, toUserID, amount)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStarsCredited(db.TransactionTypeAward, amount)
	s.notifier.Publish(starsTopic(toUserID))
	s.notifier.Publish(starsTopic(caller))
	return &entry, nil
}

// AwardWeeklyStarIfEligible 在客户端提交的完成记录达到周目标时发放一颗星
// 幂等键与 ToggleStatus 共用，重复调用或并发调用最多发放一次
func (s *LedgerService) AwardWeeklyStarIfEligible(ctx context.Context, in WeeklyAwardInput) (bool, error) {
	if strings.TrimSpace(in.HabitID) == "" || strings.TrimSpace(in.UserID) == "" {
		return false, fmt.Errorf("%w: habitId and userId are required", ErrInvalidInput)
	}
	if in.WeeklyGoal <= 0 {
		return false, fmt.Errorf("%w: weeklyGoal must be positive", ErrInvalidInput)
	}

	completed := countDone(in.DailyStatus)
	if completed < in.WeeklyGoal {
		return false, nil
	}

	now := s.clock.Now()
	weekStart, _ := WeekRange(now)
	award := habitAward{
		Key:        awardKey(s.policy, in.HabitID, in.UserID, weekStart, now),
		HabitID:    in.HabitID,
		HabitTitle: in.HabitTitle,
		Owner:      in.UserID,
		PartnerID:  in.PartnerID,
		Completed:  completed,
	}

	var awarded bool
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		ok, err := awardHabitStar(tx, award)
		if err != nil {
			return err
		}
		awarded = ok
		if !ok {
			return nil
		}
		return tx.Model(&db.Habit{}).
			Where("id = ? AND owner = ?", in.HabitID, in.UserID).
			Updates(map[string]interface{}{
				"weekly_star_awarded":    true,
				"weekly_star_awarded_at": now,
			}).Error
	})
	if err != nil {
		return false, err
	}

	if awarded {
		metrics.RecordStarsCredited(db.TransactionTypeHabitCompletion, 1)
		s.notifier.Publish(starsTopic(in.UserID))
		s.notifier.Publish(habitsTopic(in.UserID))
	}
	return awarded, nil
}

// Transfer 从 from 向 to 转移星星，余额不足时失败
func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount int, reason string) (*db.Transaction, error) {
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	var entry *db.Transaction
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		created, err := transferStars(tx, from, to, amount, strings.TrimSpace(reason), "transfer")
		entry = created
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStarsCredited(db.TransactionTypeStarTransaction, amount)
	s.notifier.Publish(starsTopic(from))
	s.notifier.Publish(starsTopic(to))
	return entry, nil
}

// LedgerSummary 汇总用户余额与最近的账本记录
type LedgerSummary struct {
	Stars        int              `json:"stars"`
	Transactions []db.Transaction `json:"transactions"`
}

// Summary 返回 uid 的余额与最近 limit 条账本记录
func (s *LedgerService) Summary(uid string, limit int) (*LedgerSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var user db.User
	if err := s.db.Select("id", "stars").First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}

	var entries []db.Transaction
	if err := s.db.Where(`"from" = ? OR "to" = ?`, uid, uid).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return &LedgerSummary{Stars: user.Stars, Transactions: entries}, nil
}

// awardHabitStar 以幂等键写入一条 HABIT_COMPLETION 记录并给 owner 加一颗星
// 幂等键已存在时不做任何修改并返回 false
func awardHabitStar(tx *gorm.DB, award habitAward) (bool, error) {
	habitID := award.HabitID
	completed := award.Completed
	key := award.Key

	title := strings.TrimSpace(award.HabitTitle)
	if title == "" {
		title = "habit"
	}

	entry := db.Transaction{
		From:           db.SystemAccount,
		To:             award.Owner,
		Amount:         1,
		Type:           db.TransactionTypeHabitCompletion,
		Reason:         fmt.Sprintf("Completed weekly goal for %s", title),
		Category:       "habit",
		Participants:   participants(award.Owner, award.PartnerID),
		HabitID:        &habitID,
		CompletedCount: &completed,
		Status:         "completed",
		AwardKey:       &key,
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "award_key"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return false, fmt.Errorf("create habit award: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if err := adjustStars(tx, award.Owner, 1); err != nil {
		return false, err
	}
	return true, nil
}

// transferStars 在事务内完成扣款、入账与账本写入
func transferStars(tx *gorm.DB, from, to string, amount int, reason, category string) (*db.Transaction, error) {
	var payer db.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "stars").First(&payer, "id = ?", from).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load payer: %w", err)
	}
	if payer.Stars < amount {
		return nil, ErrInsufficientStars
	}

	if reason == "" {
		reason = "Star transfer"
	}
	entry := db.Transaction{
		From:         from,
		To:           to,
		Amount:       amount,
		Type:         db.TransactionTypeStarTransaction,
		Reason:       reason,
		Category:     category,
		Participants: []string{from, to},
		Status:       "completed",
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("create transfer entry: %w", err)
	}
	if err := adjustStars(tx, from, -amount); err != nil {
		return nil, err
	}
	if err := adjustStars(tx, to, amount); err != nil {
		return nil, err
	}
	return &entry, nil
}

// adjustStars 原子地增减余额；用户不存在时返回 ErrUserNotFound
func adjustStars(tx *gorm.DB, uid string, delta int) error {
	result := tx.Model(&db.User{}).
		Where("id = ?", uid).
		Updates(map[string]interface{}{
			"stars":      gorm.Expr("stars + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update stars: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// awardKey 生成两条发星路径共用的幂等键
// weekly 按完成所在周的周日划分；daily 按发放当天（Clock 时区）划分
func awardKey(policy, habitID, owner string, weekStart, awardedAt time.Time) string {
	window := weekStart.Format(dateFormat)
	if policy == config.AwardPolicyDaily {
		window = awardedAt.Format(dateFormat)
	}
	return fmt.Sprintf("habit:%s:%s:%s", habitID, owner, window)
}

func normalizePolicy(policy string) string {
	if strings.EqualFold(strings.TrimSpace(policy), config.AwardPolicyDaily) {
		return config.AwardPolicyDaily
	}
	return config.AwardPolicyWeekly
}

func countDone(statuses []DayStatus) int {
	seen := make(map[string]struct{}, len(statuses))
	count := 0
	for _, st := range statuses {
		if !st.Done {
			continue
		}
		key := strings.TrimSpace(st.Date)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		count++
	}
	return count
}

func participants(owner, partner string) []string {
	out := []string{owner}
	if p := strings.TrimSpace(partner); p != "" && p != owner {
		out = append(out, p)
	}
	return out
}

func starsTopic(uid string) string {
	return "stars:" + uid
}

func habitsTopic(uid string) string {
	return "habits:" + uid
}
