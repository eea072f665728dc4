package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/jobs"
	"github.com/twogether/internal/service"
	"go.uber.org/zap"
)

type purgeTransactionsRequest struct {
	Before string `json:"before"`
}

// GetAdminSettings 返回当前后台设置
func (a *API) GetAdminSettings(c *gin.Context) {
	settings, err := a.admin.GetSettings()
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateAdminSettings 局部更新后台设置
func (a *API) UpdateAdminSettings(c *gin.Context) {
	var payload service.AdminSettingsInput
	if !bindJSON(c, &payload, "请填写有效的设置") {
		return
	}
	settings, err := a.admin.UpdateSettings(payload)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "设置已保存",
		"settings": settings,
	})
}

// RunJob 立即执行一个维护任务
func (a *API) RunJob(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	for _, job := range jobs.MaintenanceJobs(a.maintenance) {
		if job.Name != name {
			continue
		}
		processed, err := job.Run(c.Request.Context())
		if err != nil {
			handleServiceError(c, err)
			return
		}
		a.logger.Info("job triggered manually", zap.String("job", name), zap.Int("processed", processed))
		c.JSON(http.StatusOK, gin.H{"job": name, "processed": processed})
		return
	}
	respondError(c, http.StatusNotFound, "任务不存在")
}

// PurgeUser 删除用户及其全部文档，账本记录保留
func (a *API) PurgeUser(c *gin.Context) {
	uid := strings.TrimSpace(c.Param("uid"))
	if uid == callerFrom(c).UID {
		respondError(c, http.StatusBadRequest, "不能删除当前登录的账号")
		return
	}
	report, err := a.maintenance.PurgeUser(c.Request.Context(), uid)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// PurgeTransactions 删除早于 before 的账本记录
func (a *API) PurgeTransactions(c *gin.Context) {
	var payload purgeTransactionsRequest
	if !bindJSON(c, &payload, "请提供截止日期") {
		return
	}
	_, cutoff, err := service.ParseDateKey(payload.Before, a.clock.Location())
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的截止日期")
		return
	}
	if cutoff.After(a.clock.Now().Add(-24 * time.Hour)) {
		respondError(c, http.StatusBadRequest, "截止日期必须早于今天")
		return
	}
	deleted, err := a.maintenance.PurgeTransactionsBefore(c.Request.Context(), cutoff)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
