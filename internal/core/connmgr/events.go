package connmgr

import (
	"fmt"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              生命周期事件
// ============================================================================

// Event 连接生命周期事件
//
// 封闭接口，只有本包定义的类型实现它：
//   - PeerConnected
//   - PeerDisconnected
//   - PeerConnectFailed
//   - PeerInboundConnectFailed
//   - NewInboundSubstream（仅内部使用，不对外发布）
type Event interface {
	fmt.Stringer
	isEvent()
}

// PeerConnected 连接在握手与协议识别都成功后建立
type PeerConnected struct {
	Conn *PeerConnection
}

// PeerDisconnected 连接关闭，每个连接只发布一次
type PeerDisconnected struct {
	ConnID    uuid.UUID
	NodeID    types.NodeID
	Direction types.Direction
}

// PeerConnectFailed 出站拨号失败
type PeerConnectFailed struct {
	NodeID types.NodeID
	Err    error
}

// PeerInboundConnectFailed 入站连接失败或被拒绝
type PeerInboundConnectFailed struct {
	// RemoteAddr 对端地址，可能为 nil
	RemoteAddr ma.Multiaddr
	Err        error
}

// NewInboundSubstream 对端打开的子流已完成协议协商
type NewInboundSubstream struct {
	NodeID   types.NodeID
	Protocol types.ProtocolID
	Stream   interfaces.Substream
}

func (PeerConnected) isEvent()            {}
func (PeerDisconnected) isEvent()         {}
func (PeerConnectFailed) isEvent()        {}
func (PeerInboundConnectFailed) isEvent() {}
func (NewInboundSubstream) isEvent()      {}

func (e PeerConnected) String() string {
	return fmt.Sprintf("PeerConnected(%s)", e.Conn)
}

func (e PeerDisconnected) String() string {
	return fmt.Sprintf("PeerDisconnected(%s, %s)", e.NodeID.ShortString(), e.Direction)
}

func (e PeerConnectFailed) String() string {
	return fmt.Sprintf("PeerConnectFailed(%s, %v)", e.NodeID.ShortString(), e.Err)
}

func (e PeerInboundConnectFailed) String() string {
	return fmt.Sprintf("PeerInboundConnectFailed(%v)", e.Err)
}

func (e NewInboundSubstream) String() string {
	return fmt.Sprintf("NewInboundSubstream(%s, %s)", e.NodeID.ShortString(), e.Protocol)
}
