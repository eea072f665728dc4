package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DevSecret 是未配置密钥时的开发用默认值，release 模式下拒绝启动
	DevSecret = "twogether-dev-secret"
	// AwardPolicyWeekly 同一习惯每周最多奖励一颗星。
	AwardPolicyWeekly = "weekly"
	// AwardPolicyDaily 同一习惯每天最多奖励一颗星。
	AwardPolicyDaily = "daily"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabasePath       string
	SessionSecret      string
	TokenSecret        string
	TokenTTL           time.Duration
	GinMode            string
	UploadDir          string
	UploadURLPath      string
	Timezone           string
	AwardMaxStars      int
	AwardDedupPolicy   string
	FunctionsRateLimit float64
	FunctionsRateBurst int
	CalendarAPIBaseURL string
	LogLevel           string
	LogFile            string
	EnableJobs         bool
	SuperAdminEmail    string
	SuperAdminPassword string
}

// LoadDotEnv 在存在 .env 文件时将其加载到进程环境变量，已存在的变量不会被覆盖。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := envOr("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	sessionSecret := envOr("SESSION_SECRET", DevSecret)

	policy := strings.ToLower(envOr("AWARD_DEDUP_POLICY", AwardPolicyWeekly))
	if policy != AwardPolicyDaily {
		policy = AwardPolicyWeekly
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		DatabasePath:       envOr("DATABASE_PATH", "twogether.db"),
		SessionSecret:      sessionSecret,
		TokenSecret:        envOr("TOKEN_SECRET", sessionSecret),
		TokenTTL:           envDuration("TOKEN_TTL", 7*24*time.Hour),
		GinMode:            envOr("GIN_MODE", "release"),
		UploadDir:          envOr("UPLOAD_DIR", "web/static/uploads"),
		UploadURLPath:      envOr("UPLOAD_URL_PATH", "/static/uploads"),
		Timezone:           envOr("TIMEZONE", "Local"),
		AwardMaxStars:      envInt("AWARD_MAX_STARS", 100),
		AwardDedupPolicy:   policy,
		FunctionsRateLimit: envFloat("FUNCTIONS_RATE_LIMIT", 5),
		FunctionsRateBurst: envInt("FUNCTIONS_RATE_BURST", 20),
		CalendarAPIBaseURL: envOr("CALENDAR_API_BASE_URL", "https://www.googleapis.com/calendar/v3"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFile:            strings.TrimSpace(os.Getenv("LOG_FILE")),
		EnableJobs:         envBool("ENABLE_JOBS", true),
		SuperAdminEmail:    strings.TrimSpace(os.Getenv("SUPER_ADMIN_EMAIL")),
		SuperAdminPassword: strings.TrimSpace(os.Getenv("SUPER_ADMIN_PASSWORD")),
	}
}

// Validate 检查启动前必须满足的配置；release 模式下不允许使用开发密钥
func (c AppConfig) Validate() error {
	if !strings.EqualFold(c.GinMode, "release") {
		return nil
	}
	if c.SessionSecret == DevSecret {
		return errors.New("SESSION_SECRET must be set in release mode")
	}
	if c.TokenSecret == DevSecret {
		return errors.New("TOKEN_SECRET must be set in release mode")
	}
	return nil
}

// Location 解析配置的时区，无法识别时回退到本地时区。
func (c AppConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
