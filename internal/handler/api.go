package handler

import (
	"github.com/twogether/internal/auth"
	"github.com/twogether/internal/callable"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/realtime"
	"github.com/twogether/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 汇总构造 API 所需的外部依赖，未提供的字段使用默认实现。
type Options struct {
	Config config.AppConfig
	Hub    *realtime.Hub
	Logger *zap.Logger
	Clock  *service.Clock
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db     *gorm.DB
	cfg    config.AppConfig
	clock  service.Clock
	hub    *realtime.Hub
	logger *zap.Logger
	tokens *auth.Manager

	users       *service.UserService
	habits      *service.HabitService
	statuses    *service.DailyStatusService
	ledger      *service.LedgerService
	reminders   *service.ReminderService
	messages    *service.MessageService
	coupons     *service.CouponService
	moods       *service.MoodService
	calendar    *service.CalendarService
	avatars     *service.AvatarService
	admin       *service.AdminSettingService
	maintenance *service.MaintenanceService

	functions *callable.Registry
	limiter   *rateLimiter
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	cfg := opts.Config
	clock := service.NewClock(cfg.Location())
	if opts.Clock != nil {
		clock = *opts.Clock
	}
	hub := opts.Hub
	if hub == nil {
		hub = realtime.NewHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	adminSettings := service.NewAdminSettingService(gdb, cfg.AwardMaxStars)
	users := service.NewUserService(gdb, hub)

	a := &API{
		db:     gdb,
		cfg:    cfg,
		clock:  clock,
		hub:    hub,
		logger: logger,
		tokens: auth.NewManager(cfg.TokenSecret, cfg.TokenTTL),

		users:    users,
		habits:   service.NewHabitService(gdb, clock, hub),
		statuses: service.NewDailyStatusService(gdb, service.DailyStatusOptions{Clock: clock, Policy: cfg.AwardDedupPolicy, Notifier: hub}),
		ledger: service.NewLedgerService(gdb, service.LedgerOptions{
			Clock:    clock,
			Policy:   cfg.AwardDedupPolicy,
			Settings: adminSettings,
			Notifier: hub,
		}),
		reminders:   service.NewReminderService(gdb, clock, hub),
		messages:    service.NewMessageService(gdb, clock, hub),
		coupons:     service.NewCouponService(gdb, clock, hub),
		moods:       service.NewMoodService(gdb, clock),
		calendar:    service.NewCalendarService(gdb, clock, cfg.CalendarAPIBaseURL),
		avatars:     service.NewAvatarService(users, cfg.UploadDir, cfg.UploadURLPath),
		admin:       adminSettings,
		maintenance: service.NewMaintenanceService(gdb, clock, service.MaxBatchSize, hub),

		limiter: newRateLimiter(cfg.FunctionsRateLimit, cfg.FunctionsRateBurst),
	}
	a.functions = callable.NewRegistry(mapServiceError, logger)
	a.registerFunctions()
	return a
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Functions 返回已注册的可调用函数表。
func (a *API) Functions() *callable.Registry {
	return a.functions
}

// Maintenance 返回批量维护服务，供定时任务与命令行复用。
func (a *API) Maintenance() *service.MaintenanceService {
	return a.maintenance
}

// Tokens 返回令牌管理器。
func (a *API) Tokens() *auth.Manager {
	return a.tokens
}

// Calendar 返回日历服务，测试中用于替换外部 HTTP 客户端。
func (a *API) Calendar() *service.CalendarService {
	return a.calendar
}
