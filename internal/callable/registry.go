package callable

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/twogether/internal/metrics"
	"go.uber.org/zap"
)

// HandlerFunc 处理一次函数调用，data 为请求体中的 data 字段。
type HandlerFunc func(ctx context.Context, caller *Caller, data json.RawMessage) (interface{}, error)

// Registry 按名称注册可调用函数，并统一错误归一化。
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	mapper   Mapper
	logger   *zap.Logger
}

// NewRegistry 构造函数注册表；mapper 用于把领域错误映射为函数错误。
func NewRegistry(mapper Mapper, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		mapper:   mapper,
		logger:   logger,
	}
}

// Register 注册函数，同名重复注册会 panic。
func (r *Registry) Register(name string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("callable: function %q already registered", name))
	}
	r.handlers[name] = handler
}

// Names 返回已注册的函数名（有序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke 执行指定函数；任何错误（包括 panic）都会被归一化为 *Error。
func (r *Registry) Invoke(ctx context.Context, name string, caller *Caller, data json.RawMessage) (result interface{}, callErr *Error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("callable panic", zap.String("function", name), zap.Any("panic", rec))
			result = nil
			callErr = Errorf(CodeInternal, "internal error")
		}
		code := "ok"
		if callErr != nil {
			code = string(callErr.Code)
		}
		metrics.RecordFunctionCall(name, code, time.Since(start))
	}()

	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, Errorf(CodeNotFound, "function %s not found", name)
	}

	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	out, err := handler(ctx, caller, data)
	if err != nil {
		normalized := Normalize(err, r.mapper)
		if normalized.Code == CodeInternal {
			r.logger.Error("callable failed", zap.String("function", name), zap.Error(err))
		}
		return nil, normalized
	}
	return out, nil
}

// Decode 将 data 解析到 dst，失败时返回 invalid-argument。
func Decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return Errorf(CodeInvalidArgument, "request data is required")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Wrap(CodeInvalidArgument, "malformed request data", err)
	}
	return nil
}
