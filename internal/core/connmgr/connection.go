package connmgr

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/internal/core/identify"
	"github.com/dep2p/go-comms/internal/core/muxer/yamux"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              PeerConnection
// ============================================================================

// PeerConnection 已认证、加密、多路复用的节点连接
//
// 只有在握手与协议识别都成功后才会创建。连接关闭（本端关闭、对端断开
// 或 I/O 错误）时发布且只发布一次 PeerDisconnected。
type PeerConnection struct {
	id          uuid.UUID
	peer        types.NodeID
	publicKey   ed25519.PublicKey
	direction   types.Direction
	remoteAddr  ma.Multiaddr
	established time.Time
	identity    *identify.PeerIdentity

	muxer      *yamux.Muxer
	negotiator *protocol.Negotiator

	startOnce sync.Once
	done      chan struct{}
}

type connParams struct {
	publicKey   ed25519.PublicKey
	direction   types.Direction
	remoteAddr  ma.Multiaddr
	established time.Time
	identity    *identify.PeerIdentity
	muxer       *yamux.Muxer
	negotiator  *protocol.Negotiator
}

func newPeerConnection(p connParams) *PeerConnection {
	return &PeerConnection{
		id:          uuid.New(),
		peer:        types.NodeIDFromPublicKey(p.publicKey),
		publicKey:   p.publicKey,
		direction:   p.direction,
		remoteAddr:  p.remoteAddr,
		established: p.established,
		identity:    p.identity,
		muxer:       p.muxer,
		negotiator:  p.negotiator,
		done:        make(chan struct{}),
	}
}

// ID 连接 ID
func (c *PeerConnection) ID() uuid.UUID {
	return c.id
}

// PeerNodeID 对端 NodeID
func (c *PeerConnection) PeerNodeID() types.NodeID {
	return c.peer
}

// PublicKey 对端长期公钥
func (c *PeerConnection) PublicKey() ed25519.PublicKey {
	return c.publicKey
}

// Direction 连接方向
func (c *PeerConnection) Direction() types.Direction {
	return c.direction
}

// RemoteAddr 对端传输地址
func (c *PeerConnection) RemoteAddr() ma.Multiaddr {
	return c.remoteAddr
}

// EstablishedAt 建立时间
func (c *PeerConnection) EstablishedAt() time.Time {
	return c.established
}

// PeerIdentity 对端在协议识别阶段公布的信息
func (c *PeerConnection) PeerIdentity() *identify.PeerIdentity {
	return c.identity
}

// NumSubstreams 当前活跃子流数
func (c *PeerConnection) NumSubstreams() int {
	return c.muxer.NumStreams()
}

// IsConnected 连接是否仍然可用
func (c *PeerConnection) IsConnected() bool {
	return !c.muxer.IsClosed()
}

// Disconnected 连接关闭后关闭的通道
func (c *PeerConnection) Disconnected() <-chan struct{} {
	return c.done
}

// OpenSubstream 打开子流并协商协议
func (c *PeerConnection) OpenSubstream(ctx context.Context, id types.ProtocolID) (*yamux.Stream, error) {
	if c.muxer.IsClosed() {
		return nil, ErrConnectionClosed
	}
	s, err := c.muxer.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open substream: %w", err)
	}
	if err := c.negotiator.Select(s, id); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭连接，可重复调用
func (c *PeerConnection) Close() error {
	return c.muxer.Close()
}

func (c *PeerConnection) String() string {
	return fmt.Sprintf("%s(%s, %s)", c.peer.ShortString(), c.direction, c.remoteAddr)
}

// start 启动入站子流接受循环
//
// 只能在 PeerConnected 事件发出之后调用，保证子流事件不早于连接事件。
func (c *PeerConnection) start(ctx context.Context, events chan<- Event) {
	c.startOnce.Do(func() {
		go c.acceptLoop(ctx, events)
	})
}

func (c *PeerConnection) acceptLoop(ctx context.Context, events chan<- Event) {
	stop := context.AfterFunc(ctx, func() { _ = c.muxer.Close() })
	defer stop()

	defer func() {
		_ = c.muxer.Close()
		close(c.done)
		emit(ctx, events, PeerDisconnected{ConnID: c.id, NodeID: c.peer, Direction: c.direction})
	}()

	for {
		s, err := c.muxer.AcceptStream()
		if err != nil {
			logger.Debug("连接接受循环退出", "peer", c.peer.ShortString(), "error", err)
			return
		}
		go c.handleInbound(ctx, s, events)
	}
}

func (c *PeerConnection) handleInbound(ctx context.Context, s *yamux.Stream, events chan<- Event) {
	proto, err := c.negotiator.Negotiate(s)
	if err != nil {
		logger.Debug("入站子流协商失败", "peer", c.peer.ShortString(), "error", err)
		_ = s.Close()
		return
	}
	if !emit(ctx, events, NewInboundSubstream{NodeID: c.peer, Protocol: proto, Stream: s}) {
		_ = s.Close()
	}
}

// emit 发送内部事件，ctx 结束时放弃并返回 false
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
