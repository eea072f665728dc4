package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/twogether/internal/db"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	calendarFetchLimit     = 4
	calendarMaxPages       = 20
)

// ErrCalendarUnauthorized 外部日历拒绝了访问令牌
var ErrCalendarUnauthorized = errors.New("calendar access token rejected")

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CalendarService 管理本地日历事件，并从外部日历 API 同步
// 访问令牌由调用方每次提供，服务端不保存
type CalendarService struct {
	db         *gorm.DB
	clock      Clock
	httpClient httpDoer
	baseURL    string
}

// CalendarEventInput 本地事件字段
type CalendarEventInput struct {
	Title       string
	Description string
	Start       string
	End         string
	AllDay      bool
}

// CalendarSyncInput 描述一次同步请求
type CalendarSyncInput struct {
	AccessToken string
	CalendarIDs []string
	From        time.Time
	To          time.Time
}

// CalendarSyncResult 汇总同步结果
type CalendarSyncResult struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// NewCalendarService 构造 CalendarService
func NewCalendarService(gdb *gorm.DB, clock Clock, baseURL string) *CalendarService {
	svc := &CalendarService{
		db:         gdb,
		clock:      clock,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	svc.SetBaseURL(baseURL)
	return svc
}

// SetHTTPClient 替换用于访问外部日历的 HTTP 客户端，主要面向测试场景。
func (s *CalendarService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 15 * time.Second}
		return
	}
	s.httpClient = client
}

// SetBaseURL 覆盖外部日历 API 的基础地址。
func (s *CalendarService) SetBaseURL(base string) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		trimmed = defaultCalendarBaseURL
	}
	s.baseURL = trimmed
}

// List 返回 owner 在区间内的事件
func (s *CalendarService) List(owner string, from, to time.Time) ([]db.CalendarEvent, error) {
	var events []db.CalendarEvent
	query := s.db.Where("owner = ?", owner)
	if !from.IsZero() {
		query = query.Where("start >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("start <= ?", to)
	}
	if err := query.Order("start ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

// Create 新建本地事件
func (s *CalendarService) Create(owner string, input CalendarEventInput) (*db.CalendarEvent, error) {
	event := db.CalendarEvent{Owner: owner, Source: db.CalendarSourceLocal}
	if err := s.applyInput(&event, input); err != nil {
		return nil, err
	}
	if err := s.db.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}
	return &event, nil
}

// Update 修改本地事件
func (s *CalendarService) Update(owner, id string, input CalendarEventInput) (*db.CalendarEvent, error) {
	event, err := s.loadOwned(owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyInput(event, input); err != nil {
		return nil, err
	}
	if err := s.db.Save(event).Error; err != nil {
		return nil, fmt.Errorf("update calendar event: %w", err)
	}
	return event, nil
}

// Delete 删除事件
func (s *CalendarService) Delete(owner, id string) error {
	event, err := s.loadOwned(owner, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(event).Error; err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// Sync 并发拉取多个外部日历并按 externalId 合并到本地，已取消的事件会被删除
func (s *CalendarService) Sync(ctx context.Context, owner string, input CalendarSyncInput) (*CalendarSyncResult, error) {
	token := strings.TrimSpace(input.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("%w: accessToken is required", ErrInvalidInput)
	}
	calendars := input.CalendarIDs
	if len(calendars) == 0 {
		calendars = []string{"primary"}
	}
	from, to := input.From, input.To
	if from.IsZero() {
		from = s.clock.Now().AddDate(0, 0, -7)
	}
	if to.IsZero() {
		to = from.AddDate(0, 1, 0)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: sync window end must be after start", ErrInvalidInput)
	}

	fetched := make([][]remoteEvent, len(calendars))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(calendarFetchLimit)
	for i, calendarID := range calendars {
		i, calendarID := i, strings.TrimSpace(calendarID)
		g.Go(func() error {
			events, err := s.fetchCalendar(gctx, token, calendarID, from, to)
			if err != nil {
				return err
			}
			fetched[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &CalendarSyncResult{}
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		for _, events := range fetched {
			for _, ev := range events {
				externalID := ev.ID
				if ev.Cancelled {
					res := tx.Where("owner = ? AND external_id = ?", owner, externalID).Delete(&db.CalendarEvent{})
					if res.Error != nil {
						return fmt.Errorf("delete cancelled event: %w", res.Error)
					}
					result.Deleted += int(res.RowsAffected)
					continue
				}

				record := db.CalendarEvent{
					Owner:       owner,
					ExternalID:  &externalID,
					CalendarID:  ev.CalendarID,
					Source:      db.CalendarSourceGoogle,
					Title:       ev.Title,
					Description: ev.Description,
					Start:       ev.Start,
					End:         ev.End,
					AllDay:      ev.AllDay,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "owner"}, {Name: "external_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"calendar_id", "title", "description", "start", "end", "all_day", "updated_at"}),
				}).Create(&record).Error; err != nil {
					return fmt.Errorf("upsert synced event: %w", err)
				}
				result.Upserted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type remoteEvent struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Cancelled   bool
}

func (s *CalendarService) fetchCalendar(ctx context.Context, token, calendarID string, from, to time.Time) ([]remoteEvent, error) {
	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	var events []remoteEvent
	pageToken := ""
	for page := 0; page < calendarMaxPages; page++ {
		params := url.Values{}
		params.Set("timeMin", from.UTC().Format(time.RFC3339))
		params.Set("timeMax", to.UTC().Format(time.RFC3339))
		params.Set("singleEvents", "true")
		params.Set("showDeleted", "true")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", s.baseURL, url.PathEscape(calendarID), params.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build calendar request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request calendar %s: %w", calendarID, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read calendar %s: %w", calendarID, err)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, ErrCalendarUnauthorized
		}
		if resp.StatusCode >= 400 {
			msg := gjson.GetBytes(body, "error.message").String()
			if msg == "" {
				msg = resp.Status
			}
			return nil, fmt.Errorf("calendar %s returned %d: %s", calendarID, resp.StatusCode, msg)
		}

		for _, item := range gjson.GetBytes(body, "items").Array() {
			ev, ok := parseRemoteEvent(item, calendarID, s.clock.Location())
			if ok {
				events = append(events, ev)
			}
		}

		pageToken = gjson.GetBytes(body, "nextPageToken").String()
		if pageToken == "" {
			break
		}
	}
	return events, nil
}

func parseRemoteEvent(item gjson.Result, calendarID string, loc *time.Location) (remoteEvent, bool) {
	id := item.Get("id").String()
	if id == "" {
		return remoteEvent{}, false
	}
	ev := remoteEvent{
		ID:          id,
		CalendarID:  calendarID,
		Title:       item.Get("summary").String(),
		Description: item.Get("description").String(),
		Cancelled:   item.Get("status").String() == "cancelled",
	}
	if ev.Cancelled {
		return ev, true
	}

	start, allDay, ok := parseRemoteTime(item.Get("start"), loc)
	if !ok {
		return remoteEvent{}, false
	}
	end, _, ok := parseRemoteTime(item.Get("end"), loc)
	if !ok {
		end = start
	}
	ev.Start, ev.End, ev.AllDay = start, end, allDay
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}
	return ev, true
}

func parseRemoteTime(node gjson.Result, loc *time.Location) (time.Time, bool, bool) {
	if dt := node.Get("dateTime").String(); dt != "" {
		t, err := time.Parse(time.RFC3339, dt)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, false, true
	}
	if d := node.Get("date").String(); d != "" {
		t, err := time.ParseInLocation(dateFormat, d, loc)
		if err != nil {
			return time.Time{}, false, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}

func (s *CalendarService) applyInput(event *db.CalendarEvent, input CalendarEventInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	start, err := parseTimestamp(input.Start, s.clock.Location())
	if err != nil {
		return err
	}
	end := start
	if strings.TrimSpace(input.End) != "" {
		if end, err = parseTimestamp(input.End, s.clock.Location()); err != nil {
			return err
		}
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", ErrInvalidInput)
	}
	event.Title = title
	event.Description = strings.TrimSpace(input.Description)
	event.Start = start
	event.End = end
	event.AllDay = input.AllDay
	return nil
}

func (s *CalendarService) loadOwned(owner, id string) (*db.CalendarEvent, error) {
	var event db.CalendarEvent
	if err := s.db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	if event.Owner != owner {
		return nil, ErrPermissionDenied
	}
	return &event, nil
}
