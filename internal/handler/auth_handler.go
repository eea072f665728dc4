package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/auth"
	"github.com/twogether/internal/callable"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/logging"
	"github.com/twogether/internal/service"
)

const (
	sessionUserKey  = "user_id"
	sessionAdminKey = "is_admin"
	callerKey       = "__caller"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticate 解析调用方身份：优先使用 Bearer 令牌，其次使用会话 cookie。
// 匿名请求不会被拒绝，由 AuthRequired 或具体函数决定。
func (a *API) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := &callable.Caller{}
		if token, ok := auth.TokenFromRequest(c.Request); ok {
			if claims, err := a.tokens.Parse(token); err == nil {
				caller.UID = claims.UID
				caller.Claims = map[string]interface{}{"admin": claims.Admin}
			}
		} else {
			session := sessions.Default(c)
			if uid, ok := session.Get(sessionUserKey).(string); ok && uid != "" {
				admin, _ := session.Get(sessionAdminKey).(bool)
				caller.UID = uid
				caller.Claims = map[string]interface{}{"admin": admin}
			}
		}

		if caller.UID != "" {
			c.Set(logging.CallerUIDKey, caller.UID)
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// AuthRequired 拒绝未认证的请求
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !callerFrom(c).Authenticated() {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired 要求调用方携带 admin 声明
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		if !caller.Authenticated() {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		if !caller.IsAdmin() {
			respondError(c, http.StatusForbidden, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) *callable.Caller {
	if value, ok := c.Get(callerKey); ok {
		if caller, ok := value.(*callable.Caller); ok {
			return caller
		}
	}
	return &callable.Caller{}
}

// Register 注册新用户并直接登录
func (a *API) Register(c *gin.Context) {
	var payload registerRequest
	if !bindJSON(c, &payload, "请填写邮箱与密码") {
		return
	}

	user, err := a.users.Register(c.Request.Context(), service.RegisterInput{
		Email:       payload.Email,
		Password:    payload.Password,
		DisplayName: payload.DisplayName,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	a.startSession(c, http.StatusCreated, user)
}

// Login 校验邮箱密码，写入会话并签发令牌
func (a *API) Login(c *gin.Context) {
	var payload loginRequest
	if !bindJSON(c, &payload, "请填写邮箱与密码") {
		return
	}

	user, err := a.users.Authenticate(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "邮箱或密码错误")
			return
		}
		handleServiceError(c, err)
		return
	}

	a.startSession(c, http.StatusOK, user)
}

// Logout 清除会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.Error(err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me 返回当前用户资料及伴侣概要
func (a *API) Me(c *gin.Context) {
	uid := callerFrom(c).UID
	user, err := a.users.Get(uid)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	payload := gin.H{"user": user}
	if user.PartnerID != nil {
		if partner, err := a.users.Get(*user.PartnerID); err == nil {
			payload["partner"] = partnerSummary(partner)
		}
	}
	c.JSON(http.StatusOK, payload)
}

func (a *API) startSession(c *gin.Context, status int, user *db.User) {
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	session.Set(sessionAdminKey, user.IsAdmin)
	if err := session.Save(); err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	token, err := a.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "签发令牌失败")
		return
	}

	c.JSON(status, gin.H{"user": user, "token": token})
}

func partnerSummary(user *db.User) gin.H {
	return gin.H{
		"id":          user.ID,
		"displayName": strings.TrimSpace(user.DisplayName),
		"avatarUrl":   user.AvatarURL,
		"stars":       user.Stars,
	}
}
