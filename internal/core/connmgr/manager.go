package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              连接管理器
// ============================================================================

// Manager 连接管理器
//
// 单个 goroutine 运行事件循环，负责：
//   - 处理外部请求（拨号、取消拨号、监听通知）
//   - 将入站子流分发给协议处理器
//   - 将生命周期事件发布给订阅者
//   - 关闭时关闭所有连接
//
// 拨号由独立的拨号器 goroutine 执行，入站连接由监听器处理。
type Manager struct {
	cfg       Config
	transport interfaces.Transport
	secure    interfaces.SecureChannel
	backoff   interfaces.BackoffPolicy
	identity  *identity.Identity
	directory interfaces.PeerDirectory
	requests  <-chan Request
	events    *eventbus.Broadcaster[Event]
	registry  *protocol.Registry
	opts      options

	internal chan Event
	complete chan struct{}
	running  atomic.Bool

	// 以下字段只由 Run goroutine 访问
	listening *ListenerInfo
	conns     map[uuid.UUID]*PeerConnection
	dialer    *dialer
}

// New 创建连接管理器，不做任何 I/O
//
// 监听与拨号在 Run 中开始。requests 由调用方持有发送端，
// 通常通过 NewRequester 包装；events 由调用方负责关闭。
func New(
	cfg Config,
	transport interfaces.Transport,
	secure interfaces.SecureChannel,
	backoff interfaces.BackoffPolicy,
	requests <-chan Request,
	id *identity.Identity,
	directory interfaces.PeerDirectory,
	events *eventbus.Broadcaster[Event],
	opts ...Option,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case transport == nil:
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	case secure == nil:
		return nil, fmt.Errorf("%w: secure channel is required", ErrInvalidConfig)
	case backoff == nil:
		return nil, fmt.Errorf("%w: backoff policy is required", ErrInvalidConfig)
	case requests == nil:
		return nil, fmt.Errorf("%w: request channel is required", ErrInvalidConfig)
	case id == nil:
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidConfig)
	case directory == nil:
		return nil, fmt.Errorf("%w: peer directory is required", ErrInvalidConfig)
	case events == nil:
		return nil, fmt.Errorf("%w: event broadcaster is required", ErrInvalidConfig)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.resolve(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		transport: transport,
		secure:    secure,
		backoff:   backoff,
		identity:  id,
		directory: directory,
		requests:  requests,
		events:    events,
		registry:  protocol.NewRegistry(),
		opts:      o,
		internal:  make(chan Event, EventChannelSize),
		complete:  make(chan struct{}),
		conns:     make(map[uuid.UUID]*PeerConnection),
	}, nil
}

// AddProtocols 合并协议处理器，应在 Run 之前调用
func (m *Manager) AddProtocols(r *protocol.Registry) {
	m.registry.Extend(r)
}

// Complete Run 返回后关闭
func (m *Manager) Complete() <-chan struct{} {
	return m.complete
}

// Metrics 管理器使用的指标
func (m *Manager) Metrics() *Metrics {
	return m.opts.metrics
}

// Run 运行连接管理器直到 ctx 结束
//
// 主监听器绑定失败时立即返回错误，不会启动拨号器也不会处理任何请求。
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.complete)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	negotiator := protocol.NewNegotiator(m.registry, m.opts.negotiationTimeout)
	up := &upgrader{
		network:    m.cfg.Network,
		secure:     m.secure,
		identity:   m.identity,
		userAgent:  m.cfg.UserAgent,
		negotiator: negotiator,
		yamuxCfg:   m.opts.yamuxCfg,
		clock:      m.opts.clock,
		metrics:    m.opts.metrics,
	}
	liveness := newLivenessTracker(m.cfg.LivenessMaxSessions, m.opts.metrics)

	listeners, info, err := m.bindListeners(ctx, up, liveness)
	if err != nil {
		cancel()
		for _, l := range listeners {
			l.Wait()
		}
		return err
	}
	if m.identity.AddPublicAddressIfEmpty(info.BindAddress) {
		logger.Info("使用监听地址作为公布地址", "addr", info.BindAddress)
	}

	m.dialer = newDialer(m.cfg, m.transport, up, m.backoff, m.opts.selector, m.directory, m.opts.clock, m.opts.metrics, m.internal)
	var g errgroup.Group
	g.Go(func() error {
		m.dialer.run(ctx)
		return nil
	})

	m.listening = &info
	logger.Info("连接管理器已启动", "addr", info.BindAddress, "aux", info.AuxBindAddress, "node", m.identity.NodeID().ShortString())

	m.loop(ctx)

	cancel()
	m.drainInternal()
	if err := m.closeConnections(); err != nil {
		logger.Warn("关闭连接时出错", "error", err)
	}
	for _, l := range listeners {
		l.Wait()
	}
	_ = g.Wait()

	logger.Info("连接管理器已停止")
	return nil
}

// bindListeners 绑定主监听器与可选的辅助监听器
func (m *Manager) bindListeners(ctx context.Context, up *upgrader, liveness *livenessTracker) ([]*listener, ListenerInfo, error) {
	var info ListenerInfo

	primary := m.newListener("primary", m.cfg.ListenerAddress, m.transport, up, liveness)
	bound, err := primary.Listen(ctx)
	if err != nil {
		logger.Error("主监听器绑定失败", "addr", m.cfg.ListenerAddress, "error", err)
		return nil, info, fmt.Errorf("%w: %s: %w", ErrListenerBind, m.cfg.ListenerAddress, err)
	}
	info.BindAddress = bound
	listeners := []*listener{primary}

	if m.cfg.AuxiliaryListenerAddress == nil {
		return listeners, info, nil
	}

	aux := m.newListener("auxiliary", m.cfg.AuxiliaryListenerAddress, m.opts.auxTransport, up, liveness)
	auxBound, err := aux.Listen(ctx)
	if err != nil {
		if m.cfg.AuxiliaryListenerRequired {
			logger.Error("辅助监听器绑定失败", "addr", m.cfg.AuxiliaryListenerAddress, "error", err)
			return listeners, info, fmt.Errorf("%w: %s: %w", ErrListenerBind, m.cfg.AuxiliaryListenerAddress, err)
		}
		logger.Warn("辅助监听器不可用，继续运行", "addr", m.cfg.AuxiliaryListenerAddress, "error", err)
		m.events.Publish(PeerInboundConnectFailed{
			Err: fmt.Errorf("%w: %s: %w", ErrAuxListenerUnavailable, m.cfg.AuxiliaryListenerAddress, err),
		})
		return listeners, info, nil
	}
	info.AuxBindAddress = auxBound
	return append(listeners, aux), info, nil
}

func (m *Manager) newListener(name string, addr ma.Multiaddr, transport interfaces.Transport, up *upgrader, liveness *livenessTracker) *listener {
	return newListener(listenerParams{
		name:      name,
		bindAddr:  addr,
		transport: transport,
		upgrader:  up,
		cfg:       m.cfg,
		liveness:  liveness,
		events:    m.internal,
		directory: m.directory,
		metrics:   m.opts.metrics,
	})
}

func (m *Manager) loop(ctx context.Context) {
	requests := m.requests
	for {
		select {
		case ev := <-m.internal:
			m.handleEvent(ctx, ev)

		case req, ok := <-requests:
			if !ok {
				logger.Debug("请求通道已关闭")
				requests = nil
				continue
			}
			m.handleRequest(ctx, req)

		case <-ctx.Done():
			logger.Debug("连接管理器收到关闭信号")
			return
		}
	}
}

func (m *Manager) handleRequest(ctx context.Context, req Request) {
	switch r := req.(type) {
	case DialPeerRequest:
		if m.isSelf(r.NodeID) {
			sendDialResult(r.Reply, DialResult{Err: ErrDialSelf})
			return
		}
		peer, err := m.directory.Find(ctx, r.NodeID)
		if err != nil {
			sendDialResult(r.Reply, DialResult{Err: err})
			return
		}
		if peer.IsBanned() {
			sendDialResult(r.Reply, DialResult{Err: fmt.Errorf("%w: %s", ErrPeerBanned, r.NodeID.ShortString())})
			return
		}
		m.dialer.dial(ctx, peer, r.Reply)

	case CancelDialRequest:
		m.dialer.cancelPendingDial(ctx, r.NodeID)

	case NotifyListeningRequest:
		sendListenerInfo(r.Reply, *m.listening)

	case ActiveConnectionsRequest:
		sendConnections(r.Reply, m.activeConnections())

	default:
		logger.Warn("未知请求类型", "type", fmt.Sprintf("%T", req))
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case NewInboundSubstream:
		err := m.registry.Notify(ctx, interfaces.ProtocolNotification{
			Peer:     e.NodeID,
			Protocol: e.Protocol,
			Stream:   e.Stream,
		})
		if err != nil && !errors.Is(err, protocol.ErrNoHandler) {
			logger.Warn("协议处理器出错", "peer", e.NodeID.ShortString(), "protocol", e.Protocol, "error", err)
		}
		return

	case PeerConnected:
		m.conns[e.Conn.ID()] = e.Conn
		m.opts.metrics.activeConnections.WithLabelValues(e.Conn.Direction().String()).Inc()
		logger.Debug("节点已连接", "peer", e.Conn.PeerNodeID().ShortString(), "direction", e.Conn.Direction())

	case PeerDisconnected:
		if _, ok := m.conns[e.ConnID]; ok {
			delete(m.conns, e.ConnID)
			m.opts.metrics.activeConnections.WithLabelValues(e.Direction.String()).Dec()
		}
		logger.Debug("节点已断开", "peer", e.NodeID.ShortString(), "direction", e.Direction)

	case PeerConnectFailed:
		logger.Debug("拨号失败", "peer", e.NodeID.ShortString(), "error", e.Err)

	case PeerInboundConnectFailed:
		logger.Debug("入站连接失败", "remote", e.RemoteAddr, "error", e.Err)
	}

	m.events.Publish(ev)
}

// closeConnections 关闭所有存活连接
func (m *Manager) closeConnections() error {
	var err error
	for id, c := range m.conns {
		err = multierr.Append(err, c.Close())
		delete(m.conns, id)
		m.opts.metrics.activeConnections.WithLabelValues(c.Direction().String()).Dec()
	}
	return err
}

// drainInternal 处理循环退出后仍留在内部通道中的事件
func (m *Manager) drainInternal() {
	for {
		select {
		case ev := <-m.internal:
			switch e := ev.(type) {
			case PeerConnected:
				m.conns[e.Conn.ID()] = e.Conn
				m.opts.metrics.activeConnections.WithLabelValues(e.Conn.Direction().String()).Inc()
			case NewInboundSubstream:
				_ = e.Stream.Close()
			}
		default:
			return
		}
	}
}

// activeConnections 按建立时间排序的存活连接
func (m *Manager) activeConnections() []*PeerConnection {
	out := make([]*PeerConnection, 0, len(m.conns))
	for _, c := range m.conns {
		if c.IsConnected() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EstablishedAt().Before(out[j].EstablishedAt())
	})
	return out
}

// isSelf 是否为本节点
func (m *Manager) isSelf(id types.NodeID) bool {
	return id == m.identity.NodeID()
}
