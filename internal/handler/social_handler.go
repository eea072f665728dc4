package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/service"
)

type linkPartnerRequest struct {
	Email string `json:"email"`
}

type transferRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

type messageRequest struct {
	Body string `json:"body"`
}

type couponRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
}

type moodRequest struct {
	Date string `json:"date"`
	Mood string `json:"mood"`
	Note string `json:"note"`
}

// LinkPartner 通过邮箱绑定伴侣
func (a *API) LinkPartner(c *gin.Context) {
	var payload linkPartnerRequest
	if !bindJSON(c, &payload, "请填写伴侣邮箱") {
		return
	}
	partner, err := a.users.LinkPartner(c.Request.Context(), callerFrom(c).UID, payload.Email)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partnerSummary(partner)})
}

// UnlinkPartner 解除伴侣绑定
func (a *API) UnlinkPartner(c *gin.Context) {
	if err := a.users.UnlinkPartner(c.Request.Context(), callerFrom(c).UID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StarSummary 返回余额与最近的账本记录
func (a *API) StarSummary(c *gin.Context) {
	summary, err := a.ledger.Summary(callerFrom(c).UID, queryInt(c, "limit", 50))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// TransferStars 将星星转给已绑定的伴侣
func (a *API) TransferStars(c *gin.Context) {
	var payload transferRequest
	if !bindJSON(c, &payload, "请填写转账数量") {
		return
	}
	uid := callerFrom(c).UID
	partnerID, err := a.users.PartnerOf(uid)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	entry, err := a.ledger.Transfer(c.Request.Context(), uid, partnerID, payload.Amount, payload.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": entry})
}

// ListMessages 返回与伴侣的对话，before 为 RFC3339 时间用于翻页
func (a *API) ListMessages(c *gin.Context) {
	var before time.Time
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的分页时间")
			return
		}
		before = parsed
	}
	messages, err := a.messages.Conversation(callerFrom(c).UID, before, queryInt(c, "limit", 50))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage 向伴侣发送消息
func (a *API) SendMessage(c *gin.Context) {
	var payload messageRequest
	if !bindJSON(c, &payload, "消息内容不能为空") {
		return
	}
	msg, err := a.messages.Send(c.Request.Context(), callerFrom(c).UID, payload.Body)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkMessageRead 标记消息为已读
func (a *API) MarkMessageRead(c *gin.Context) {
	msg, err := a.messages.MarkRead(callerFrom(c).UID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// ListCoupons 返回发出与收到的优惠券
func (a *API) ListCoupons(c *gin.Context) {
	coupons, err := a.coupons.List(callerFrom(c).UID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

// CreateCoupon 为伴侣创建优惠券
func (a *API) CreateCoupon(c *gin.Context) {
	var payload couponRequest
	if !bindJSON(c, &payload, "请填写完整的优惠券信息") {
		return
	}
	coupon, err := a.coupons.Create(c.Request.Context(), callerFrom(c).UID, service.CouponInput{
		Title:       payload.Title,
		Description: payload.Description,
		Cost:        payload.Cost,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

// RedeemCoupon 兑换优惠券
func (a *API) RedeemCoupon(c *gin.Context) {
	coupon, err := a.coupons.Redeem(c.Request.Context(), callerFrom(c).UID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

// RecordMood 记录今天（或指定日期）的心情
func (a *API) RecordMood(c *gin.Context) {
	var payload moodRequest
	if !bindJSON(c, &payload, "请选择心情") {
		return
	}
	mood, err := a.moods.Record(c.Request.Context(), callerFrom(c).UID, service.MoodInput{
		Date: payload.Date,
		Mood: payload.Mood,
		Note: payload.Note,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mood": mood})
}

// ListMoods 返回本人或伴侣（owner 参数）的心情记录，默认最近 30 天
func (a *API) ListMoods(c *gin.Context) {
	now := a.clock.Now()
	start, end, ok := a.parseRangeQuery(c, now.AddDate(0, 0, -29), now)
	if !ok {
		return
	}
	moods, err := a.moods.List(callerFrom(c).UID, strings.TrimSpace(c.Query("owner")), start, end)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moods": moods})
}
