package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/callable"
	"github.com/twogether/internal/service"
)

const maxFunctionBody = 1 << 20

type callRequest struct {
	Data json.RawMessage `json:"data"`
}

// CallFunction 处理 POST /functions/:name，按可调用协议读写 {"data"} / {"result"} / {"error"}
func (a *API) CallFunction(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	caller := callerFrom(c)

	if a.admin.MaintenanceMode() && !caller.IsAdmin() {
		respondCallError(c, callable.Errorf(callable.CodeUnavailable, "service is under maintenance"))
		return
	}

	key := caller.UID
	if key == "" {
		key = "ip:" + c.ClientIP()
	}
	if !a.limiter.Allow(key) {
		respondCallError(c, callable.Errorf(callable.CodeResourceExhausted, "too many requests"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFunctionBody))
	if err != nil {
		respondCallError(c, callable.Errorf(callable.CodeInvalidArgument, "unable to read request body"))
		return
	}
	var req callRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondCallError(c, callable.Errorf(callable.CodeInvalidArgument, "request body must be a JSON object"))
			return
		}
	}

	result, callErr := a.functions.Invoke(c.Request.Context(), name, caller, req.Data)
	if callErr != nil {
		if callErr.Code == callable.CodeInternal {
			c.Error(callErr)
		}
		respondCallError(c, callErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func respondCallError(c *gin.Context, err *callable.Error) {
	c.JSON(err.Code.HTTPStatus(), gin.H{
		"error": gin.H{
			"status":  err.Code.Status(),
			"message": err.Message,
		},
	})
}

type toggleReminderData struct {
	ReminderID string `json:"reminderId"`
	Completed  *bool  `json:"completed"`
}

type createReminderData struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type updateReminderData struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Completed   *bool   `json:"completed"`
}

type reminderIDData struct {
	ID string `json:"id"`
}

type awardStarsData struct {
	ToUserID string   `json:"toUserId"`
	Amount   *float64 `json:"amount"`
	Reason   string   `json:"reason"`
}

type toggleDailyStatusData struct {
	HabitID string `json:"habitId"`
	Date    string `json:"date"`
	Done    *bool  `json:"done"`
}

type toggleHabitStatusData struct {
	HabitID       string `json:"habitId"`
	Date          string `json:"date"`
	CurrentStatus bool   `json:"currentStatus"`
}

type weeklyAwardData struct {
	HabitID     string              `json:"habitId"`
	PartnerID   string              `json:"partnerId"`
	DailyStatus []service.DayStatus `json:"dailyStatus"`
}

func (a *API) registerFunctions() {
	a.functions.Register("toggleReminder", a.fnToggleReminder)
	a.functions.Register("createReminder", a.fnCreateReminder)
	a.functions.Register("updateReminder", a.fnUpdateReminder)
	a.functions.Register("deleteReminder", a.fnDeleteReminder)
	a.functions.Register("awardStars", a.fnAwardStars)
	a.functions.Register("toggleDailyStatus", a.fnToggleDailyStatus)
	a.functions.Register("toggleHabitStatus", a.fnToggleHabitStatus)
	a.functions.Register("awardWeeklyStarIfEligible", a.fnAwardWeeklyStarIfEligible)
}

func (a *API) fnToggleReminder(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in toggleReminderData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ReminderID) == "" || in.Completed == nil {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "reminderId and completed are required")
	}
	if _, err := a.reminders.Toggle(ctx, uid, in.ReminderID, *in.Completed); err != nil {
		return nil, err
	}
	return gin.H{"success": true}, nil
}

func (a *API) fnCreateReminder(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in createReminderData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Date) == "" {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "title and date are required")
	}
	reminder, err := a.reminders.Create(ctx, uid, service.ReminderInput{
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "id": reminder.ID}, nil
}

func (a *API) fnUpdateReminder(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in updateReminderData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ID) == "" {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "id is required")
	}
	if _, err := a.reminders.Update(ctx, uid, in.ID, service.ReminderPatch{
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		Completed:   in.Completed,
	}); err != nil {
		return nil, err
	}
	return gin.H{"success": true}, nil
}

func (a *API) fnDeleteReminder(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in reminderIDData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ID) == "" {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "id is required")
	}
	if err := a.reminders.Delete(ctx, uid, in.ID); err != nil {
		return nil, err
	}
	return gin.H{"success": true}, nil
}

func (a *API) fnAwardStars(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in awardStarsData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ToUserID) == "" || in.Amount == nil {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "toUserId and amount are required")
	}
	amount := *in.Amount
	if amount != math.Trunc(amount) || math.Abs(amount) > math.MaxInt32 {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "amount must be an integer")
	}
	if _, err := a.ledger.AwardStars(ctx, uid, in.ToUserID, int(amount), in.Reason); err != nil {
		return nil, err
	}
	return gin.H{"success": true}, nil
}

func (a *API) fnToggleDailyStatus(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in toggleDailyStatusData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.HabitID) == "" || strings.TrimSpace(in.Date) == "" || in.Done == nil {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "habitId, date and done are required")
	}
	result, err := a.statuses.SetStatus(ctx, uid, in.HabitID, in.Date, *in.Done)
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "awarded": result.Awarded, "weeklyCompletions": result.WeeklyCompletions}, nil
}

func (a *API) fnToggleHabitStatus(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in toggleHabitStatusData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.HabitID) == "" || strings.TrimSpace(in.Date) == "" {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "habitId and date are required")
	}
	result, err := a.statuses.ToggleStatus(ctx, uid, in.HabitID, in.Date, in.CurrentStatus)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fnAwardWeeklyStarIfEligible 目标与标题取自数据库中的习惯，伴侣以绑定关系为准
func (a *API) fnAwardWeeklyStarIfEligible(ctx context.Context, caller *callable.Caller, data json.RawMessage) (interface{}, error) {
	uid, err := callable.RequireAuth(caller)
	if err != nil {
		return nil, err
	}
	var in weeklyAwardData
	if err := callable.Decode(data, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.HabitID) == "" {
		return nil, callable.Errorf(callable.CodeInvalidArgument, "habitId is required")
	}

	habit, err := a.habits.Get(uid, in.HabitID)
	if err != nil {
		return nil, err
	}
	partnerID, err := a.users.PartnerOf(uid)
	if err != nil && !errors.Is(err, service.ErrNotLinked) {
		return nil, err
	}

	awarded, err := a.ledger.AwardWeeklyStarIfEligible(ctx, service.WeeklyAwardInput{
		HabitID:     habit.ID,
		UserID:      uid,
		PartnerID:   partnerID,
		WeeklyGoal:  habit.WeeklyGoal,
		HabitTitle:  habit.Title,
		DailyStatus: in.DailyStatus,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"awarded": awarded}, nil
}
