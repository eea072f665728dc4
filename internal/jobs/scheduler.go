// Package jobs 负责按计划执行的后台维护任务
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/twogether/internal/metrics"
	"go.uber.org/zap"
)

const (
	// WeeklyResetSpec 每周日零点复位上周的周奖励标记
	WeeklyResetSpec = "0 0 * * 0"
	// DailyResetSpec 每天零点复位昨天的今日完成标记
	DailyResetSpec = "0 0 * * *"

	defaultJobTimeout = 5 * time.Minute
)

// ErrUnknownJob 指定名称的任务未注册
var ErrUnknownJob = errors.New("unknown job")

// Job 是一个定时任务，Run 返回本次处理的文档数
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int, error)
}

// Maintenance 是定时任务依赖的批量维护能力
type Maintenance interface {
	ResetStaleWeeklyFlags(ctx context.Context) (int, error)
	ResetTodayFlags(ctx context.Context) (int, error)
}

// MaintenanceJobs 返回周/日两个标记复位任务
func MaintenanceJobs(m Maintenance) []Job {
	return []Job{
		{Name: "reset-weekly-flags", Spec: WeeklyResetSpec, Run: m.ResetStaleWeeklyFlags},
		{Name: "reset-today-flags", Spec: DailyResetSpec, Run: m.ResetTodayFlags},
	}
}

// Scheduler 包装 cron，在配置时区下执行任务并记录日志与指标
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu   sync.RWMutex
	jobs map[string]Job
}

// New 构造 Scheduler；loc 为空时使用本地时区
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		timeout: defaultJobTimeout,
		jobs:    make(map[string]Job),
	}
}

// Add 注册任务；名称重复或 cron 表达式非法时返回错误
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job name and run func are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.execute(context.Background(), job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// RunNow 立即执行指定任务
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job)
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) execute(parent context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	processed, err := job.Run(ctx)
	metrics.RecordJobRun(job.Name, err == nil)

	fields := []zap.Field{
		zap.String("job", job.Name),
		zap.Int("processed", processed),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("job failed", append(fields, zap.Error(err))...)
		return processed, err
	}
	s.logger.Info("job finished", fields...)
	return processed, nil
}

// cronLogger 将 cron 的日志接口转接到 zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
