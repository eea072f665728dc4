package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"gorm.io/gorm"
)

func newTestLedgerService(gdb *gorm.DB) *LedgerService {
	return NewLedgerService(gdb, LedgerOptions{
		Clock:    FixedClock(testNow),
		Settings: NewAdminSettingService(gdb, 100),
	})
}

func TestAwardStarsValidation(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := newTestLedgerService(gdb)
	alice := mustCreateUser(t, gdb, "a@example.com")
	bob := mustCreateUser(t, gdb, "b@example.com")
	ctx := context.Background()

	cases := []struct {
		name   string
		to     string
		amount int
		want   error
	}{
		{"negative amount", bob.ID, -5, ErrInvalidInput},
		{"zero amount", bob.ID, 0, ErrInvalidInput},
		{"above maximum", bob.ID, 101, ErrInvalidInput},
		{"missing recipient", "", 3, ErrInvalidInput},
		{"self award", alice.ID, 3, ErrInvalidInput},
		{"unknown recipient", "ghost", 3, ErrUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AwardStars(ctx, alice.ID, tc.to, tc.amount, "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if got := countLedger(t, gdb, ""); got != 0 {
		t.Fatalf("rejected awards must not write ledger entries, got %d", got)
	}
	if stars := starsOf(t, gdb, bob.ID); stars != 0 {
		t.Fatalf("rejected awards must not change balances, got %d", stars)
	}
}

func TestAwardStarsCreditsRecipient(t *testing.T) {
	gdb := openServiceTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewLedgerService(gdb, LedgerOptions{Clock: FixedClock(testNow), Notifier: notifier})
	alice := mustCreateUser(t, gdb, "a@example.com")
	bob := mustCreateUser(t, gdb, "b@example.com")

	entry, err := svc.AwardStars(context.Background(), alice.ID, bob.ID, 5, "  Did the dishes ")
	if err != nil {
		t.Fatalf("AwardStars returned error: %v", err)
	}
	if entry.Type != db.TransactionTypeAward || entry.Amount != 5 || entry.Reason != "Did the dishes" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.From != alice.ID || entry.To != bob.ID {
		t.Fatalf("unexpected parties %s -> %s", entry.From, entry.To)
	}
	if stars := starsOf(t, gdb, bob.ID); stars != 5 {
		t.Fatalf("expected 5 stars, got %d", stars)
	}
	if stars := starsOf(t, gdb, alice.ID); stars != 0 {
		t.Fatalf("awarding must not debit the caller, got %d", stars)
	}
	if !notifier.has(starsTopic(bob.ID)) {
		t.Fatalf("expected stars topic for recipient to be published")
	}
}

func TestAwardStarsHonorsAdminMaximum(t *testing.T) {
	gdb := openServiceTestDB(t)
	settings := NewAdminSettingService(gdb, 100)
	svc := NewLedgerService(gdb, LedgerOptions{Clock: FixedClock(testNow), Settings: settings})
	alice := mustCreateUser(t, gdb, "a@example.com")
	bob := mustCreateUser(t, gdb, "b@example.com")

	limit := 10
	if _, err := settings.UpdateSettings(AdminSettingsInput{AwardMaxAmount: &limit}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	if _, err := svc.AwardStars(context.Background(), alice.ID, bob.ID, 11, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput above admin maximum, got %v", err)
	}
	if _, err := svc.AwardStars(context.Background(), alice.ID, bob.ID, 10, ""); err != nil {
		t.Fatalf("AwardStars at maximum returned error: %v", err)
	}
}

func TestAwardWeeklyStarIfEligible(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := newTestLedgerService(gdb)
	user := mustCreateUser(t, gdb, "a@example.com")
	habit := mustCreateHabit(t, gdb, user.ID, 3)
	ctx := context.Background()

	input := WeeklyAwardInput{
		HabitID:    habit.ID,
		UserID:     user.ID,
		WeeklyGoal: 3,
		HabitTitle: habit.Title,
		DailyStatus: []DayStatus{
			{Date: "2025-01-05", Done: true},
			{Date: "2025-01-06", Done: true},
			{Date: "2025-01-06", Done: true},
			{Date: "2025-01-07", Done: false},
		},
	}

	awarded, err := svc.AwardWeeklyStarIfEligible(ctx, input)
	if err != nil {
		t.Fatalf("AwardWeeklyStarIfEligible returned error: %v", err)
	}
	if awarded {
		t.Fatalf("duplicate dates must not count twice")
	}

	input.DailyStatus[3].Done = true
	for i := 0; i < 3; i++ {
		awarded, err = svc.AwardWeeklyStarIfEligible(ctx, input)
		if err != nil {
			t.Fatalf("AwardWeeklyStarIfEligible #%d returned error: %v", i, err)
		}
		if awarded != (i == 0) {
			t.Fatalf("call #%d awarded=%v", i, awarded)
		}
	}

	if stars := starsOf(t, gdb, user.ID); stars != 1 {
		t.Fatalf("expected 1 star, got %d", stars)
	}
	var reloaded db.Habit
	if err := gdb.First(&reloaded, "id = ?", habit.ID).Error; err != nil {
		t.Fatalf("reload habit: %v", err)
	}
	if !reloaded.WeeklyStarAwarded {
		t.Fatalf("expected weekly flag to be set")
	}

	if _, err := svc.AwardWeeklyStarIfEligible(ctx, WeeklyAwardInput{HabitID: habit.ID, UserID: user.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing goal, got %v", err)
	}
}

func TestWeeklyAwardSharedWithToggle(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := newTestLedgerService(gdb)
	statuses := NewDailyStatusService(gdb, DailyStatusOptions{Clock: FixedClock(testNow)})
	user := mustCreateUser(t, gdb, "a@example.com")
	habit := mustCreateHabit(t, gdb, user.ID, 1)
	ctx := context.Background()

	result, err := statuses.SetStatus(ctx, user.ID, habit.ID, "2025-01-06", true)
	if err != nil || !result.Awarded {
		t.Fatalf("expected toggle to award, got %+v err=%v", result, err)
	}

	awarded, err := ledger.AwardWeeklyStarIfEligible(ctx, WeeklyAwardInput{
		HabitID:     habit.ID,
		UserID:      user.ID,
		WeeklyGoal:  1,
		DailyStatus: []DayStatus{{Date: "2025-01-06", Done: true}},
	})
	if err != nil {
		t.Fatalf("AwardWeeklyStarIfEligible returned error: %v", err)
	}
	if awarded {
		t.Fatalf("client path must not award again in the same week")
	}
	if got := countLedger(t, gdb, db.TransactionTypeHabitCompletion); got != 1 {
		t.Fatalf("expected one award entry, got %d", got)
	}
}

func TestAwardWeeklyStarConcurrentCallers(t *testing.T) {
	gdb := openFileTestDB(t)
	svc := newTestLedgerService(gdb)
	user := mustCreateUser(t, gdb, "a@example.com")
	habit := mustCreateHabit(t, gdb, user.ID, 1)
	input := WeeklyAwardInput{
		HabitID:     habit.ID,
		UserID:      user.ID,
		WeeklyGoal:  1,
		DailyStatus: []DayStatus{{Date: "2025-01-06", Done: true}},
	}

	const callers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.AwardWeeklyStarIfEligible(context.Background(), input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				awarded++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent awards returned errors: %v", errs)
	}
	if awarded != 1 {
		t.Fatalf("expected exactly one caller to award, got %d", awarded)
	}
	if stars := starsOf(t, gdb, user.ID); stars != 1 {
		t.Fatalf("expected 1 star, got %d", stars)
	}
}

func TestTransfer(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := newTestLedgerService(gdb)
	alice := mustCreateUser(t, gdb, "a@example.com")
	bob := mustCreateUser(t, gdb, "b@example.com")
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, alice.ID, bob.ID, 3, ""); !errors.Is(err, ErrInsufficientStars) {
		t.Fatalf("expected ErrInsufficientStars, got %v", err)
	}
	if got := countLedger(t, gdb, ""); got != 0 {
		t.Fatalf("failed transfer must not write ledger entries, got %d", got)
	}

	if _, err := svc.AwardStars(ctx, bob.ID, alice.ID, 5, ""); err != nil {
		t.Fatalf("seed stars: %v", err)
	}
	entry, err := svc.Transfer(ctx, alice.ID, bob.ID, 3, "movie night")
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if entry.Type != db.TransactionTypeStarTransaction {
		t.Fatalf("unexpected type %s", entry.Type)
	}
	if a, b := starsOf(t, gdb, alice.ID), starsOf(t, gdb, bob.ID); a != 2 || b != 3 {
		t.Fatalf("unexpected balances alice=%d bob=%d", a, b)
	}

	if _, err := svc.Transfer(ctx, alice.ID, alice.ID, 1, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self transfer, got %v", err)
	}

	summary, err := svc.Summary(alice.ID, 0)
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Stars != 2 || len(summary.Transactions) != 2 {
		t.Fatalf("unexpected summary: stars=%d entries=%d", summary.Stars, len(summary.Transactions))
	}
}

func TestAwardKeyWindows(t *testing.T) {
	weekStart, _ := WeekRange(time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC))
	if got := awardKey("weekly", "h1", "u1", weekStart, testNow); got != "habit:h1:u1:2025-01-05" {
		t.Fatalf("unexpected weekly key %s", got)
	}
	// daily 窗口取发放当天，而不是被切换的日期
	if got := awardKey("daily", "h1", "u1", weekStart, testNow); got != "habit:h1:u1:2025-01-08" {
		t.Fatalf("unexpected daily key %s", got)
	}
}

func TestDailyAwardSharedWithToggle(t *testing.T) {
	gdb := openServiceTestDB(t)
	ledger := NewLedgerService(gdb, LedgerOptions{
		Clock:    FixedClock(testNow),
		Policy:   config.AwardPolicyDaily,
		Settings: NewAdminSettingService(gdb, 100),
	})
	statuses := NewDailyStatusService(gdb, DailyStatusOptions{Clock: FixedClock(testNow), Policy: config.AwardPolicyDaily})
	user := mustCreateUser(t, gdb, "a@example.com")
	habit := mustCreateHabit(t, gdb, user.ID, 3)
	ctx := context.Background()

	days := []DayStatus{}
	for _, date := range []string{"2025-01-05", "2025-01-06", "2025-01-07"} {
		if _, err := statuses.SetStatus(ctx, user.ID, habit.ID, date, true); err != nil {
			t.Fatalf("SetStatus(%s) returned error: %v", date, err)
		}
		days = append(days, DayStatus{Date: date, Done: true})
	}

	awarded, err := ledger.AwardWeeklyStarIfEligible(ctx, WeeklyAwardInput{
		HabitID:     habit.ID,
		UserID:      user.ID,
		WeeklyGoal:  3,
		DailyStatus: days,
	})
	if err != nil {
		t.Fatalf("AwardWeeklyStarIfEligible returned error: %v", err)
	}
	if awarded {
		t.Fatalf("evaluator must not award again on the same day")
	}
	if got := countLedger(t, gdb, db.TransactionTypeHabitCompletion); got != 1 {
		t.Fatalf("expected one award entry, got %d", got)
	}
	if got := starsOf(t, gdb, user.ID); got != 1 {
		t.Fatalf("expected 1 star, got %d", got)
	}
}
