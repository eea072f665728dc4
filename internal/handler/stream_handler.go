package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/realtime"
	"github.com/twogether/internal/service"
	"go.uber.org/zap"
)

const streamHeartbeat = 25 * time.Second

// streamLoader 返回集合对应的快照加载函数
func (a *API) streamLoader(collection, uid string) (realtime.Loader, bool) {
	switch collection {
	case "habits":
		return func(context.Context) (interface{}, error) {
			return a.habits.List(uid, service.HabitFilter{})
		}, true
	case "reminders":
		return func(context.Context) (interface{}, error) {
			return a.reminders.List(uid, true)
		}, true
	case "stars":
		return func(context.Context) (interface{}, error) {
			return a.ledger.Summary(uid, 50)
		}, true
	case "messages":
		return func(context.Context) (interface{}, error) {
			return a.messages.Conversation(uid, time.Time{}, 50)
		}, true
	case "coupons":
		return func(context.Context) (interface{}, error) {
			return a.coupons.List(uid)
		}, true
	case "profile":
		return func(context.Context) (interface{}, error) {
			return a.users.Get(uid)
		}, true
	default:
		return nil, false
	}
}

// Stream 以 SSE 推送集合快照：订阅后立即下发一次，之后每次变更下发最新全量
func (a *API) Stream(c *gin.Context) {
	collection := c.Param("collection")
	uid := callerFrom(c).UID
	load, ok := a.streamLoader(collection, uid)
	if !ok {
		respondError(c, http.StatusNotFound, "不支持的订阅集合")
		return
	}

	sub := a.hub.Subscribe(c.Request.Context(), realtime.UserTopic(collection, uid), load)
	defer sub.Close()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return false
			}
			if snap.Err != nil {
				a.logger.Warn("stream snapshot failed", zap.String("topic", snap.Topic), zap.Error(snap.Err))
				c.SSEvent("error", gin.H{"message": "加载数据失败"})
				return true
			}
			c.SSEvent("snapshot", gin.H{"version": snap.Version, "data": snap.Data})
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", a.clock.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
