package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/handler"
	"github.com/twogether/internal/logging"
	"github.com/twogether/internal/metrics"
	"go.uber.org/zap"
)

const sessionName = "twogether_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, cfg config.AppConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger), metrics.GinMiddleware())

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(api.Authenticate())

	// 上传的头像
	if dir := strings.TrimSpace(cfg.UploadDir); dir != "" {
		urlPath := strings.TrimSpace(cfg.UploadURLPath)
		if urlPath == "" {
			urlPath = "/uploads"
		}
		r.Static(urlPath, dir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/healthz", api.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 可调用函数网关，认证在函数内部判断
	r.POST("/functions/:name", api.CallFunction)

	public := r.Group("/api")
	{
		public.POST("/auth/register", api.Register)
		public.POST("/auth/login", api.Login)
		public.POST("/auth/logout", api.Logout)
		public.GET("/announcement", api.Announcement)
	}

	authed := r.Group("/api")
	authed.Use(handler.AuthRequired())
	{
		authed.GET("/me", api.Me)
		authed.PUT("/me", api.UpdateProfile)
		authed.POST("/me/avatar", api.UploadAvatar)

		authed.POST("/partner", api.LinkPartner)
		authed.DELETE("/partner", api.UnlinkPartner)

		authed.GET("/habits", api.ListHabits)
		authed.POST("/habits", api.CreateHabit)
		authed.GET("/habits/:id", api.GetHabit)
		authed.PUT("/habits/:id", api.UpdateHabit)
		authed.DELETE("/habits/:id", api.DeleteHabit)
		authed.GET("/habits/:id/week", api.HabitWeek)
		authed.GET("/habits/:id/stats", api.HabitStats)
		authed.POST("/habits/:id/toggle", api.ToggleHabit)

		authed.GET("/reminders", api.ListReminders)
		authed.POST("/reminders", api.CreateReminder)
		authed.PATCH("/reminders/:id", api.UpdateReminder)
		authed.DELETE("/reminders/:id", api.DeleteReminder)

		authed.GET("/stars", api.StarSummary)
		authed.POST("/stars/transfer", api.TransferStars)

		authed.GET("/messages", api.ListMessages)
		authed.POST("/messages", api.SendMessage)
		authed.POST("/messages/:id/read", api.MarkMessageRead)

		authed.GET("/coupons", api.ListCoupons)
		authed.POST("/coupons", api.CreateCoupon)
		authed.POST("/coupons/:id/redeem", api.RedeemCoupon)

		authed.GET("/moods", api.ListMoods)
		authed.POST("/moods", api.RecordMood)

		authed.GET("/calendar/events", api.ListCalendarEvents)
		authed.POST("/calendar/events", api.CreateCalendarEvent)
		authed.PUT("/calendar/events/:id", api.UpdateCalendarEvent)
		authed.DELETE("/calendar/events/:id", api.DeleteCalendarEvent)
		authed.POST("/calendar/sync", api.SyncCalendar)

		authed.GET("/stream/:collection", api.Stream)
	}

	// 后台管理路由
	admin := r.Group("/api/admin")
	admin.Use(handler.AdminRequired())
	{
		admin.GET("/settings", api.GetAdminSettings)
		admin.PUT("/settings", api.UpdateAdminSettings)
		admin.POST("/jobs/:name", api.RunJob)
		admin.DELETE("/users/:uid", api.PurgeUser)
		admin.POST("/transactions/purge", api.PurgeTransactions)
	}

	return r
}
