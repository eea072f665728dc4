package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/twogether/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

const maxMessageLength = 4000

var (
	messageMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	messageSanitizer = bluemonday.UGCPolicy()
)

// MessageService 负责伴侣之间的消息收发
type MessageService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
}

// NewMessageService 构造 MessageService
func NewMessageService(gdb *gorm.DB, clock Clock, notifier Notifier) *MessageService {
	return &MessageService{db: gdb, clock: clock, notifier: notifierOrNop(notifier)}
}

// Send 向已绑定的伴侣发送一条 Markdown 消息
func (s *MessageService) Send(ctx context.Context, from, body string) (*db.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	if len([]rune(body)) > maxMessageLength {
		return nil, fmt.Errorf("%w: body exceeds %d characters", ErrInvalidInput, maxMessageLength)
	}

	partnerID, err := lookupPartner(s.db.WithContext(ctx), from)
	if err != nil {
		return nil, err
	}
	if partnerID == "" {
		return nil, ErrNotLinked
	}

	rendered, err := RenderMessage(body)
	if err != nil {
		return nil, err
	}

	msg := db.Message{From: from, To: partnerID, Body: body, BodyHTML: rendered}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.notifier.Publish(messagesTopic(from))
	s.notifier.Publish(messagesTopic(partnerID))
	return &msg, nil
}

// Conversation 返回 uid 与伴侣之间的消息，按时间倒序；before 非零时分页
func (s *MessageService) Conversation(uid string, before time.Time, limit int) ([]db.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	partnerID, err := lookupPartner(s.db, uid)
	if err != nil {
		return nil, err
	}
	if partnerID == "" {
		return []db.Message{}, nil
	}

	query := s.db.Where(`("from" = ? AND "to" = ?) OR ("from" = ? AND "to" = ?)`, uid, partnerID, partnerID, uid)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}
	var messages []db.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// MarkRead 将发给 uid 的消息标记为已读
func (s *MessageService) MarkRead(uid, id string) (*db.Message, error) {
	var msg db.Message
	if err := s.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.To != uid {
		return nil, ErrPermissionDenied
	}
	if msg.ReadAt == nil {
		now := s.clock.Now()
		if err := s.db.Model(&msg).Update("read_at", now).Error; err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		msg.ReadAt = &now
		s.notifier.Publish(messagesTopic(msg.From))
	}
	return &msg, nil
}

// RenderMessage 渲染 Markdown 并净化输出
func RenderMessage(body string) (string, error) {
	var buf bytes.Buffer
	if err := messageMarkdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return strings.TrimSpace(messageSanitizer.Sanitize(buf.String())), nil
}

func messagesTopic(uid string) string {
	return "messages:" + uid
}
