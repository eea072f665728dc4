// Package realtime 在主题变化时向订阅者推送集合快照
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/twogether/internal/metrics"
)

// Snapshot 是某个主题的一次物化视图
type Snapshot struct {
	Topic   string
	Version uint64
	Data    interface{}
	Err     error
}

// Loader 加载主题的当前状态
type Loader func(ctx context.Context) (interface{}, error)

// Hub 按主题把变更通知分发给订阅
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
}

// NewHub 构造空的 Hub
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscription 通过 C 推送快照，直到调用 Close 或订阅 context 结束
// 停止推送后 C 会被关闭
type Subscription struct {
	C <-chan Snapshot

	hub     *Hub
	topic   string
	out     chan Snapshot
	dirty   chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	version atomic.Uint64
}

// Subscribe 为 topic 注册订阅；首个快照由订阅 goroutine 延迟加载，之后随 Publish 刷新
// 连续多次 Publish 合并为一次加载
func (h *Hub) Subscribe(ctx context.Context, topic string, load Loader) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot)
	sub := &Subscription{
		C:      out,
		hub:    h,
		topic:  topic,
		out:    out,
		dirty:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.dirty <- struct{}{}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.SubscriberOpened()

	go sub.run(ctx, load)
	return sub
}

// Publish 将 topic 标记为已变化
func (h *Hub) Publish(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.topics[topic] {
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

// Subscribers 返回 topic 当前的订阅数
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close 取消全部订阅并等待其 goroutine 退出
func (h *Hub) Close() {
	h.mu.Lock()
	var subs []*Subscription
	for _, set := range h.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[sub.topic]
	if subs == nil {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	metrics.SubscriberClosed()
}

func (s *Subscription) run(ctx context.Context, load Loader) {
	defer close(s.done)
	defer close(s.out)
	defer s.hub.remove(s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
		}

		data, err := load(ctx)
		if ctx.Err() != nil {
			return
		}
		snap := Snapshot{Topic: s.topic, Version: s.version.Add(1), Data: data, Err: err}

		select {
		case s.out <- snap:
		case <-ctx.Done():
			return
		}
	}
}

// Close 停止推送并等待订阅 goroutine 退出，可重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
	})
	<-s.done
}

// Topic 返回订阅的主题
func (s *Subscription) Topic() string {
	return s.topic
}

// UserTopic 返回某用户某集合的主题名
func UserTopic(collection, uid string) string {
	return collection + ":" + uid
}
