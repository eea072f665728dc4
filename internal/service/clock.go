package service

import (
	"fmt"
	"strings"
	"time"
)

const dateFormat = "2006-01-02"

// Clock 提供当前时间与用户时区，所有“今天/本周”的判断都经由它完成
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock 构造使用系统时间的 Clock，loc 为空时使用本地时区
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{loc: loc, now: time.Now}
}

// FixedClock 返回固定时间的 Clock，主要用于测试
func FixedClock(at time.Time) Clock {
	return Clock{loc: at.Location(), now: func() time.Time { return at }}
}

// Now 返回当前时间（已转换到 Clock 时区）
func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now().In(c.Location())
	}
	return c.now().In(c.Location())
}

// Location 返回 Clock 时区
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Today 返回今天的日期键 YYYY-MM-DD
func (c Clock) Today() string {
	return c.Now().Format(dateFormat)
}

// WeekRange 返回包含 day 的周日至周六区间（均为零点）
func WeekRange(day time.Time) (start, end time.Time) {
	d := normalizeToDate(day)
	start = d.AddDate(0, 0, -int(d.Weekday()))
	end = start.AddDate(0, 0, 6)
	return start, end
}

// withinWeek 判断 t 是否落在以 weekStart 开始的周内
func withinWeek(t time.Time, weekStart time.Time) bool {
	local := t.In(weekStart.Location())
	next := weekStart.AddDate(0, 0, 7)
	return !local.Before(weekStart) && local.Before(next)
}

// ParseDateKey 解析 YYYY-MM-DD 或 RFC3339 时间，返回 loc 时区下的日期键与当天零点
func ParseDateKey(raw string, loc *time.Location) (string, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}

	if day, err := time.ParseInLocation(dateFormat, trimmed, loc); err == nil {
		return day.Format(dateFormat), day, nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			day := normalizeToDate(ts.In(loc))
			return day.Format(dateFormat), day, nil
		}
	}

	return "", time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, raw)
}

// parseTimestamp 解析 RFC3339 时间或 YYYY-MM-DD 日期
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}
	if day, err := time.ParseInLocation(dateFormat, trimmed, loc); err == nil {
		return day, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, raw)
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
