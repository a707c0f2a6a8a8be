package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// Registry 协议注册表
//
// 协议 ID 到处理器的运行时映射。连接管理器在 Run 之前通过
// AddProtocols 合并注册表片段，之后只读。
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.ProtocolID]interfaces.ProtocolHandler
}

// NewRegistry 创建协议注册表
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.ProtocolID]interfaces.ProtocolHandler),
	}
}

// Register 注册协议处理器
func (r *Registry) Register(id types.ProtocolID, handler interfaces.ProtocolHandler) error {
	if !id.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidProtocolID, id)
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, id)
	}
	r.handlers[id] = handler
	return nil
}

// Unregister 注销协议处理器
func (r *Registry) Unregister(id types.ProtocolID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; !exists {
		return ErrProtocolNotRegistered
	}
	delete(r.handlers, id)
	return nil
}

// Extend 合并另一个注册表
//
// 已存在的协议以 other 中的处理器为准。
func (r *Registry) Extend(other *Registry) {
	if other == nil || other == r {
		return
	}

	other.mu.RLock()
	snapshot := make(map[types.ProtocolID]interfaces.ProtocolHandler, len(other.handlers))
	for id, h := range other.handlers {
		snapshot[id] = h
	}
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range snapshot {
		r.handlers[id] = h
	}
}

// Handler 查找处理器
func (r *Registry) Handler(id types.ProtocolID) (interfaces.ProtocolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[id]
	return h, ok
}

// Protocols 返回已注册的协议，按字典序排列
func (r *Registry) Protocols() []types.ProtocolID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ProtocolID, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 已注册协议数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Notify 将入站子流交给对应处理器
//
// 没有匹配的处理器时关闭子流并返回 ErrNoHandler；处理器返回错误时
// 同样关闭子流。成功后子流归处理器所有。
func (r *Registry) Notify(ctx context.Context, n interfaces.ProtocolNotification) error {
	h, ok := r.Handler(n.Protocol)
	if !ok {
		closeStream(n.Stream)
		logger.Info("丢弃未注册协议的子流", "peer", n.Peer.ShortString(), "protocol", n.Protocol)
		return fmt.Errorf("%w: %s", ErrNoHandler, n.Protocol)
	}

	if err := h.HandleSubstream(ctx, n); err != nil {
		closeStream(n.Stream)
		logger.Debug("协议处理器拒绝子流", "peer", n.Peer.ShortString(), "protocol", n.Protocol, "error", err)
		return err
	}
	return nil
}

func closeStream(s interfaces.Substream) {
	if s != nil {
		_ = s.Close()
	}
}
