package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/service"
)

type profileRequest struct {
	DisplayName *string          `json:"displayName"`
	Settings    *db.UserSettings `json:"settings"`
}

// UpdateProfile 更新显示名与偏好设置
func (a *API) UpdateProfile(c *gin.Context) {
	var payload profileRequest
	if !bindJSON(c, &payload, "无效的资料数据") {
		return
	}
	user, err := a.users.UpdateProfile(callerFrom(c).UID, service.ProfileInput{
		DisplayName: payload.DisplayName,
		Settings:    payload.Settings,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UploadAvatar 接收 multipart 字段 avatar，缩放后保存为头像
func (a *API) UploadAvatar(c *gin.Context) {
	file, err := c.FormFile("avatar")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的图片")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		respondError(c, http.StatusBadRequest, "只允许上传图片文件")
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "读取上传文件失败")
		return
	}
	defer src.Close()

	url, err := a.avatars.Save(callerFrom(c).UID, src)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatarUrl": url})
}
