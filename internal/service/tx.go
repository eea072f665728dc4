package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const maxTxAttempts = 5

// Notifier 在数据提交后通知实时订阅者
type Notifier interface {
	Publish(topic string)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// runInTx 在事务中执行 fn，遇到锁冲突时有限次重试
func runInTx(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = gdb.WithContext(ctx).Transaction(fn)
		if err == nil || !isRetryable(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrContention, err)
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
