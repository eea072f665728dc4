package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/handler"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func setupTestRouter(t *testing.T) (*gin.Engine, config.AppConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := config.AppConfig{
		SessionSecret:    "test-secret",
		TokenSecret:      "test-secret",
		TokenTTL:         time.Hour,
		UploadDir:        t.TempDir(),
		UploadURLPath:    "/uploads",
		Timezone:         "UTC",
		AwardMaxStars:    100,
		AwardDedupPolicy: config.AwardPolicyWeekly,
	}
	api := handler.NewAPI(gdb, handler.Options{Config: cfg, Logger: zap.NewNop()})
	return SetupRouter(api, cfg, zap.NewNop()), cfg
}

func TestSetupRouterServesUploads(t *testing.T) {
	r, cfg := setupTestRouter(t)

	fileName := "example.txt"
	fileContent := []byte("hello uploads")
	if err := os.WriteFile(filepath.Join(cfg.UploadDir, fileName), fileContent, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+fileName, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != string(fileContent) {
		t.Fatalf("unexpected body, got %q", rr.Body.String())
	}
}

func TestSetupRouterAccessControl(t *testing.T) {
	r, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "ping", method: http.MethodGet, path: "/ping", want: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "announcement", method: http.MethodGet, path: "/api/announcement", want: http.StatusOK},
		{name: "habits anonymous", method: http.MethodGet, path: "/api/habits", want: http.StatusUnauthorized},
		{name: "stream anonymous", method: http.MethodGet, path: "/api/stream/habits", want: http.StatusUnauthorized},
		{name: "admin anonymous", method: http.MethodGet, path: "/api/admin/settings", want: http.StatusUnauthorized},
		{name: "function anonymous", method: http.MethodPost, path: "/functions/createReminder", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{"data":{"title":"x","date":"2025-01-01"}}`))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rr.Code)
			}
		})
	}
}

func TestSetupRouterRegisterThenUseToken(t *testing.T) {
	r, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rr.Code, rr.Body.String())
	}

	cookies := rr.Result().Cookies()
	req = httptest.NewRequest(http.MethodGet, "/api/habits", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("habits with session: expected 200, got %d", rr.Code)
	}
}
