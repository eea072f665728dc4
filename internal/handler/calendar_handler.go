package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/service"
)

type calendarEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"allDay"`
}

type calendarSyncRequest struct {
	AccessToken string   `json:"accessToken"`
	CalendarIDs []string `json:"calendarIds"`
	From        string   `json:"from"`
	To          string   `json:"to"`
}

func (r calendarEventRequest) toInput() service.CalendarEventInput {
	return service.CalendarEventInput{
		Title:       r.Title,
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
		AllDay:      r.AllDay,
	}
}

// ListCalendarEvents 返回区间内的日历事件，默认本月前后
func (a *API) ListCalendarEvents(c *gin.Context) {
	now := a.clock.Now()
	start, end, ok := a.parseRangeQuery(c, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0))
	if !ok {
		return
	}
	events, err := a.calendar.List(callerFrom(c).UID, start, end.AddDate(0, 0, 1))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CreateCalendarEvent 新建本地事件
func (a *API) CreateCalendarEvent(c *gin.Context) {
	var payload calendarEventRequest
	if !bindJSON(c, &payload, "请填写完整的事件信息") {
		return
	}
	event, err := a.calendar.Create(callerFrom(c).UID, payload.toInput())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event})
}

// UpdateCalendarEvent 修改事件
func (a *API) UpdateCalendarEvent(c *gin.Context) {
	var payload calendarEventRequest
	if !bindJSON(c, &payload, "请填写完整的事件信息") {
		return
	}
	event, err := a.calendar.Update(callerFrom(c).UID, c.Param("id"), payload.toInput())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}

// DeleteCalendarEvent 删除事件
func (a *API) DeleteCalendarEvent(c *gin.Context) {
	if err := a.calendar.Delete(callerFrom(c).UID, c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SyncCalendar 使用调用方提供的访问令牌同步外部日历
func (a *API) SyncCalendar(c *gin.Context) {
	var payload calendarSyncRequest
	if !bindJSON(c, &payload, "请提供日历访问令牌") {
		return
	}

	input := service.CalendarSyncInput{
		AccessToken: payload.AccessToken,
		CalendarIDs: payload.CalendarIDs,
	}
	if raw := strings.TrimSpace(payload.From); raw != "" {
		_, day, err := service.ParseDateKey(raw, a.clock.Location())
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的开始日期")
			return
		}
		input.From = day
	}
	if raw := strings.TrimSpace(payload.To); raw != "" {
		_, day, err := service.ParseDateKey(raw, a.clock.Location())
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的结束日期")
			return
		}
		input.To = day
	}

	result, err := a.calendar.Sync(c.Request.Context(), callerFrom(c).UID, input)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
