package protocol

import (
	"context"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

// ============================================================================
//                              HandlerFunc
// ============================================================================

// HandlerFunc 函数形式的协议处理器
type HandlerFunc func(ctx context.Context, n interfaces.ProtocolNotification) error

var _ interfaces.ProtocolHandler = HandlerFunc(nil)

// HandleSubstream 调用函数本身
func (f HandlerFunc) HandleSubstream(ctx context.Context, n interfaces.ProtocolNotification) error {
	return f(ctx, n)
}

// ============================================================================
//                              ChannelHandler
// ============================================================================

// ChannelHandler 将入站子流投递到有界通道
//
// 上层协议栈（例如消息服务）从 Notifications() 读取并接管子流。
// 通道满时 HandleSubstream 阻塞，直到有空位或 ctx 结束。
type ChannelHandler struct {
	ch chan interfaces.ProtocolNotification
}

var _ interfaces.ProtocolHandler = (*ChannelHandler)(nil)

// NewChannelHandler 创建通道处理器，size <= 0 时使用 1
func NewChannelHandler(size int) *ChannelHandler {
	if size <= 0 {
		size = 1
	}
	return &ChannelHandler{ch: make(chan interfaces.ProtocolNotification, size)}
}

// HandleSubstream 投递通知
func (h *ChannelHandler) HandleSubstream(ctx context.Context, n interfaces.ProtocolNotification) error {
	select {
	case h.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifications 返回只读通知通道
func (h *ChannelHandler) Notifications() <-chan interfaces.ProtocolNotification {
	return h.ch
}
