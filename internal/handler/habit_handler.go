package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/service"
)

type habitPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	WeeklyGoal  int    `json:"weeklyGoal"`
}

type habitTogglePayload struct {
	Date          string `json:"date"`
	CurrentStatus *bool  `json:"currentStatus"`
	Done          *bool  `json:"done"`
}

func (p habitPayload) toInput() service.HabitInput {
	return service.HabitInput{
		Title:       p.Title,
		Description: p.Description,
		WeeklyGoal:  p.WeeklyGoal,
	}
}

// ListHabits 返回当前用户的习惯列表
func (a *API) ListHabits(c *gin.Context) {
	uid := callerFrom(c).UID
	habits, err := a.habits.List(uid, service.HabitFilter{Search: c.Query("search")})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"habits": habits})
}

// GetHabit 返回单个习惯
func (a *API) GetHabit(c *gin.Context) {
	habit, err := a.habits.Get(callerFrom(c).UID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

// CreateHabit 新建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请填写完整的习惯信息") {
		return
	}
	habit, err := a.habits.Create(callerFrom(c).UID, payload.toInput())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"habit": habit})
}

// UpdateHabit 修改习惯
func (a *API) UpdateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请填写完整的习惯信息") {
		return
	}
	habit, err := a.habits.Update(callerFrom(c).UID, c.Param("id"), payload.toInput())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

// DeleteHabit 删除习惯及其每日状态
func (a *API) DeleteHabit(c *gin.Context) {
	if err := a.habits.Delete(callerFrom(c).UID, c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HabitWeek 返回某天所在周的打卡情况，date 缺省为今天
func (a *API) HabitWeek(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		date = a.clock.Today()
	}
	week, err := a.statuses.Week(callerFrom(c).UID, c.Param("id"), date)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, week)
}

// HabitStats 返回区间统计，默认最近 30 天
func (a *API) HabitStats(c *gin.Context) {
	now := a.clock.Now()
	start, end, ok := a.parseRangeQuery(c, now.AddDate(0, 0, -29), now)
	if !ok {
		return
	}
	stats, err := a.habits.StatsBetween(callerFrom(c).UID, c.Param("id"), start, end)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ToggleHabit 设置或翻转某天的完成状态，done 优先于 currentStatus
func (a *API) ToggleHabit(c *gin.Context) {
	var payload habitTogglePayload
	if !bindJSON(c, &payload, "请提供打卡日期") {
		return
	}
	if strings.TrimSpace(payload.Date) == "" {
		payload.Date = a.clock.Today()
	}

	uid := callerFrom(c).UID
	var (
		result *service.ToggleResult
		err    error
	)
	switch {
	case payload.Done != nil:
		result, err = a.statuses.SetStatus(c.Request.Context(), uid, c.Param("id"), payload.Date, *payload.Done)
	case payload.CurrentStatus != nil:
		result, err = a.statuses.ToggleStatus(c.Request.Context(), uid, c.Param("id"), payload.Date, *payload.CurrentStatus)
	default:
		respondError(c, http.StatusBadRequest, "请提供 done 或 currentStatus")
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
