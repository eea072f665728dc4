package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twogether/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2025-01-05 是周日，testNow 落在 01-05 ~ 01-11 这一周的周三
var testNow = time.Date(2025, time.January, 8, 12, 0, 0, 0, time.UTC)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	return openDBAt(t, dsn)
}

// openFileTestDB 使用临时文件数据库，适合并发事务场景
func openFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openDBAt(t, filepath.Join(t.TempDir(), "twogether.db"))
}

func openDBAt(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func mustCreateUser(t *testing.T, gdb *gorm.DB, email string) *db.User {
	t.Helper()
	user := db.User{Email: email, DisplayName: strings.SplitN(email, "@", 2)[0], Password: "x"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return &user
}

func mustLinkUsers(t *testing.T, gdb *gorm.DB, a, b *db.User) {
	t.Helper()
	if err := gdb.Model(&db.User{}).Where("id = ?", a.ID).Update("partner_id", b.ID).Error; err != nil {
		t.Fatalf("link %s: %v", a.ID, err)
	}
	if err := gdb.Model(&db.User{}).Where("id = ?", b.ID).Update("partner_id", a.ID).Error; err != nil {
		t.Fatalf("link %s: %v", b.ID, err)
	}
}

func mustCreateHabit(t *testing.T, gdb *gorm.DB, owner string, goal int) *db.Habit {
	t.Helper()
	habit := db.Habit{Owner: owner, Title: "Morning run", WeeklyGoal: goal}
	if err := gdb.Create(&habit).Error; err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return &habit
}

func starsOf(t *testing.T, gdb *gorm.DB, uid string) int {
	t.Helper()
	var user db.User
	if err := gdb.Select("id", "stars").First(&user, "id = ?", uid).Error; err != nil {
		t.Fatalf("load stars for %s: %v", uid, err)
	}
	return user.Stars
}

func countLedger(t *testing.T, gdb *gorm.DB, txType string) int64 {
	t.Helper()
	var count int64
	query := gdb.Model(&db.Transaction{})
	if txType != "" {
		query = query.Where("type = ?", txType)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return count
}

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (n *recordingNotifier) Publish(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
}

func (n *recordingNotifier) has(topic string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.topics {
		if t == topic {
			return true
		}
	}
	return false
}
