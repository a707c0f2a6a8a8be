package connmgr

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// ListenerInfo 实际绑定的监听地址
//
// 端口 0 在绑定后被解析为真实端口。绑定完成后不再变化。
type ListenerInfo struct {
	BindAddress    ma.Multiaddr
	AuxBindAddress ma.Multiaddr
}

// DialResult 拨号结果
type DialResult struct {
	Conn *PeerConnection
	Err  error
}

// ============================================================================
//                              外部请求
// ============================================================================

// Request 提交给连接管理器的请求
//
// 回复通道必须带缓冲，管理器以非阻塞方式回复，
// 无法立即写入的回复会被丢弃。
type Request interface {
	isRequest()
}

// DialPeerRequest 拨号请求
type DialPeerRequest struct {
	NodeID types.NodeID
	Reply  chan<- DialResult
}

// CancelDialRequest 取消进行中的拨号，没有进行中的拨号时无操作
type CancelDialRequest struct {
	NodeID types.NodeID
}

// NotifyListeningRequest 监听器绑定后回复 ListenerInfo
type NotifyListeningRequest struct {
	Reply chan<- ListenerInfo
}

// ActiveConnectionsRequest 查询当前存活连接的快照
type ActiveConnectionsRequest struct {
	Reply chan<- []*PeerConnection
}

func (DialPeerRequest) isRequest()          {}
func (CancelDialRequest) isRequest()        {}
func (NotifyListeningRequest) isRequest()   {}
func (ActiveConnectionsRequest) isRequest() {}

// sendDialResult 非阻塞回复
func sendDialResult(reply chan<- DialResult, res DialResult) {
	if reply == nil {
		return
	}
	select {
	case reply <- res:
	default:
		// 连接仍由管理器持有，可通过 PeerConnected 事件获得
		logger.Warn("拨号回复通道已满，丢弃结果")
	}
}

// sendListenerInfo 非阻塞回复
func sendListenerInfo(reply chan<- ListenerInfo, info ListenerInfo) {
	if reply == nil {
		return
	}
	select {
	case reply <- info:
	default:
		logger.Warn("监听回复通道已满，丢弃结果")
	}
}

// sendConnections 非阻塞回复
func sendConnections(reply chan<- []*PeerConnection, conns []*PeerConnection) {
	if reply == nil {
		return
	}
	select {
	case reply <- conns:
	default:
		logger.Warn("连接查询回复通道已满，丢弃结果")
	}
}
