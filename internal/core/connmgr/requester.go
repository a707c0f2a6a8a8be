package connmgr

import (
	"context"

	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/pkg/types"
)

// Requester 连接管理器的类型化客户端
//
// 并发安全，可以复制给多个调用方共享。
type Requester struct {
	requests chan<- Request
	events   *eventbus.Broadcaster[Event]
	done     <-chan struct{}
}

// NewRequester 创建请求客户端
//
// done 为管理器的 Complete() 通道，可以为 nil；管理器停止后
// 请求返回 ErrManagerShutdown 而不是一直阻塞。
func NewRequester(requests chan<- Request, events *eventbus.Broadcaster[Event], done <-chan struct{}) *Requester {
	return &Requester{requests: requests, events: events, done: done}
}

// DialPeer 拨号并等待结果
//
// 对同一节点的并发调用共享同一次拨号，得到相同的结果。
// ctx 结束只停止等待，不取消拨号，取消请使用 CancelDial。
func (r *Requester) DialPeer(ctx context.Context, id types.NodeID) (*PeerConnection, error) {
	reply := make(chan DialResult, 1)
	if err := r.send(ctx, DialPeerRequest{NodeID: id, Reply: reply}); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		return res.Conn, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrManagerShutdown
	}
}

// CancelDial 取消进行中的拨号
//
// 从不返回错误：没有进行中的拨号、管理器已停止或 ctx 已结束时静默忽略。
func (r *Requester) CancelDial(ctx context.Context, id types.NodeID) {
	if err := r.send(ctx, CancelDialRequest{NodeID: id}); err != nil {
		logger.Debug("取消拨号请求未送达", "peer", id.ShortString(), "error", err)
	}
}

// WaitUntilListening 等待主监听器绑定完成
func (r *Requester) WaitUntilListening(ctx context.Context) (ListenerInfo, error) {
	reply := make(chan ListenerInfo, 1)
	if err := r.send(ctx, NotifyListeningRequest{Reply: reply}); err != nil {
		return ListenerInfo{}, err
	}

	select {
	case info := <-reply:
		return info, nil
	case <-ctx.Done():
		return ListenerInfo{}, ctx.Err()
	case <-r.done:
		return ListenerInfo{}, ErrManagerShutdown
	}
}

// ActiveConnections 返回当前存活连接
func (r *Requester) ActiveConnections(ctx context.Context) ([]*PeerConnection, error) {
	reply := make(chan []*PeerConnection, 1)
	if err := r.send(ctx, ActiveConnectionsRequest{Reply: reply}); err != nil {
		return nil, err
	}

	select {
	case conns := <-reply:
		return conns, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrManagerShutdown
	}
}

// Subscribe 订阅生命周期事件
func (r *Requester) Subscribe() (*eventbus.Subscription[Event], error) {
	return r.events.Subscribe()
}

func (r *Requester) send(ctx context.Context, req Request) error {
	select {
	case r.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrManagerShutdown
	}
}
