package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/service"
)

type reminderPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type reminderPatchPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Completed   *bool   `json:"completed"`
}

// ListReminders 返回提醒列表，completed=false 时只返回未完成项
func (a *API) ListReminders(c *gin.Context) {
	includeCompleted := true
	if raw := c.Query("completed"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			includeCompleted = v
		}
	}

	uid := callerFrom(c).UID
	reminders, err := a.reminders.List(uid, includeCompleted)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	overdue, err := a.reminders.OverdueCount(uid, a.clock.Now())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders, "overdue": overdue})
}

// CreateReminder 新建提醒
func (a *API) CreateReminder(c *gin.Context) {
	var payload reminderPayload
	if !bindJSON(c, &payload, "请填写提醒标题与日期") {
		return
	}
	reminder, err := a.reminders.Create(c.Request.Context(), callerFrom(c).UID, service.ReminderInput{
		Title:       payload.Title,
		Description: payload.Description,
		Date:        payload.Date,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reminder": reminder})
}

// UpdateReminder 局部更新提醒
func (a *API) UpdateReminder(c *gin.Context) {
	var payload reminderPatchPayload
	if !bindJSON(c, &payload, "无效的提醒数据") {
		return
	}
	reminder, err := a.reminders.Update(c.Request.Context(), callerFrom(c).UID, c.Param("id"), service.ReminderPatch{
		Title:       payload.Title,
		Description: payload.Description,
		Date:        payload.Date,
		Completed:   payload.Completed,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminder": reminder})
}

// DeleteReminder 删除提醒
func (a *API) DeleteReminder(c *gin.Context) {
	if err := a.reminders.Delete(c.Request.Context(), callerFrom(c).UID, c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
