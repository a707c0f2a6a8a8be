package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/dep2p/go-comms/pkg/types"
)

// Substream 多路复用连接上的一条逻辑子流
type Substream interface {
	io.ReadWriteCloser

	// Protocol 返回协商出的协议
	Protocol() types.ProtocolID

	// SetDeadline 设置读写截止时间
	SetDeadline(t time.Time) error
}

// ProtocolNotification 新入站子流通知
//
// 处理器收到后即拥有 Stream，负责其完整生命周期。
type ProtocolNotification struct {
	Peer     types.NodeID
	Protocol types.ProtocolID
	Stream   Substream
}

// ProtocolHandler 协议处理器
type ProtocolHandler interface {
	// HandleSubstream 接管子流
	//
	// 返回错误时调用方负责关闭子流。
	HandleSubstream(ctx context.Context, n ProtocolNotification) error
}
