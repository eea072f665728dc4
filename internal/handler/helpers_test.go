package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2025-01-08 是周三，所在周为 01-05 至 01-11
var handlerTestNow = time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)

const testPassword = "password123"

type testEnv struct {
	api    *API
	db     *gorm.DB
	engine *gin.Engine
}

type testUser struct {
	user  *db.User
	token string
}

type callResponse struct {
	Result map[string]interface{} `json:"result"`
	Error  *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := service.FixedClock(handlerTestNow)
	cfg := config.AppConfig{
		SessionSecret:    "test-session-secret",
		TokenSecret:      "test-token-secret",
		TokenTTL:         time.Hour,
		UploadDir:        t.TempDir(),
		UploadURLPath:    "/uploads",
		AwardMaxStars:    100,
		AwardDedupPolicy: config.AwardPolicyWeekly,
	}
	api := NewAPI(gdb, Options{Config: cfg, Clock: &clock})

	engine := gin.New()
	engine.Use(sessions.Sessions("test_session", cookie.NewStore([]byte(cfg.SessionSecret))))
	engine.Use(api.Authenticate())
	engine.POST("/functions/:name", api.CallFunction)
	engine.POST("/auth/register", api.Register)
	engine.POST("/auth/login", api.Login)
	engine.POST("/auth/logout", api.Logout)
	engine.GET("/healthz", api.HealthCheck)

	authed := engine.Group("/api", AuthRequired())
	authed.GET("/me", api.Me)
	authed.POST("/me/avatar", api.UploadAvatar)
	authed.POST("/partner", api.LinkPartner)
	authed.GET("/habits", api.ListHabits)
	authed.POST("/habits", api.CreateHabit)
	authed.GET("/habits/:id/week", api.HabitWeek)
	authed.POST("/habits/:id/toggle", api.ToggleHabit)
	authed.PATCH("/reminders/:id", api.UpdateReminder)
	authed.GET("/stars", api.StarSummary)
	authed.POST("/stars/transfer", api.TransferStars)
	authed.GET("/stream/:collection", api.Stream)

	admin := engine.Group("/admin", AdminRequired())
	admin.PUT("/settings", api.UpdateAdminSettings)
	admin.POST("/jobs/:name", api.RunJob)

	return &testEnv{api: api, db: gdb, engine: engine}
}

func (e *testEnv) register(t *testing.T, email string) testUser {
	t.Helper()
	user, err := e.api.users.Register(context.Background(), service.RegisterInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return e.issue(t, user)
}

func (e *testEnv) registerAdmin(t *testing.T, email string) testUser {
	t.Helper()
	u := e.register(t, email)
	if err := e.db.Model(&db.User{}).Where("id = ?", u.user.ID).Update("is_admin", true).Error; err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	u.user.IsAdmin = true
	return e.issue(t, u.user)
}

func (e *testEnv) issue(t *testing.T, user *db.User) testUser {
	t.Helper()
	token, err := e.api.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return testUser{user: user, token: token}
}

func (e *testEnv) link(t *testing.T, a, b testUser) {
	t.Helper()
	if _, err := e.api.users.LinkPartner(context.Background(), a.user.ID, b.user.Email); err != nil {
		t.Fatalf("link partners: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.engine.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) call(t *testing.T, token, name string, data interface{}) (int, callResponse) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/functions/"+name, token, map[string]interface{}{"data": data})
	var resp callResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s response %q: %v", name, rr.Body.String(), err)
	}
	return rr.Code, resp
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func countTransactions(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(&db.Transaction{}).Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func createHabit(t *testing.T, e *testEnv, owner testUser, goal int) *db.Habit {
	t.Helper()
	habit, err := e.api.habits.Create(owner.user.ID, service.HabitInput{Title: "Read", WeeklyGoal: goal})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return habit
}
