package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// handleServiceError 将领域错误转换为 HTTP 响应，未识别的错误记入请求错误并返回 500。
func handleServiceError(c *gin.Context, err error) {
	mapped := normalizeError(err)
	if mapped.Code.HTTPStatus() >= http.StatusInternalServerError {
		c.Error(err)
	}
	respondError(c, mapped.Code.HTTPStatus(), mapped.Message)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// parseRangeQuery 读取 start/end 查询参数（YYYY-MM-DD 或 RFC3339），缺省时使用 fallback 区间。
func (a *API) parseRangeQuery(c *gin.Context, fallbackStart, fallbackEnd time.Time) (time.Time, time.Time, bool) {
	start, end := fallbackStart, fallbackEnd
	if raw := strings.TrimSpace(c.Query("start")); raw != "" {
		_, day, err := service.ParseDateKey(raw, a.clock.Location())
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的开始日期")
			return time.Time{}, time.Time{}, false
		}
		start = day
	}
	if raw := strings.TrimSpace(c.Query("end")); raw != "" {
		_, day, err := service.ParseDateKey(raw, a.clock.Location())
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的结束日期")
			return time.Time{}, time.Time{}, false
		}
		end = day
	}
	if end.Before(start) {
		respondError(c, http.StatusBadRequest, "结束日期不能早于开始日期")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
