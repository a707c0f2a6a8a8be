package connmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              拨号器
// ============================================================================

// dialerRequest 管理器发给拨号器的请求
type dialerRequest struct {
	// 拨号请求
	peer  *types.Peer
	reply chan<- DialResult

	// 取消请求
	isCancel bool
	cancelID types.NodeID
}

// pendingDial 进行中的拨号
//
// 只由拨号器 goroutine 访问。
type pendingDial struct {
	cancel  context.CancelFunc
	replies []chan<- DialResult

	// cancelled 已收到取消请求，之后到达的请求不再加入本次拨号
	cancelled bool

	// redial 取消后到达的请求，本次拨号结束后重新发起
	redial      *types.Peer
	redialReply []chan<- DialResult
}

// dialOutcome 拨号 goroutine 的结果
type dialOutcome struct {
	id   types.NodeID
	conn *PeerConnection
	err  error
}

// dialer 出站拨号器
//
// 同一 NodeID 同时只有一个拨号；拨号进行中收到的重复请求加入该拨号，
// 所有请求方得到相同的结果。
type dialer struct {
	cfg       Config
	transport interfaces.Transport
	upgrader  *upgrader
	backoff   interfaces.BackoffPolicy
	selector  AddressSelector
	directory interfaces.PeerDirectory
	clock     clock.Clock
	metrics   *Metrics

	requests chan dialerRequest
	events   chan<- Event

	// 以下字段只由 run goroutine 访问
	pending  map[types.NodeID]*pendingDial
	outcomes chan dialOutcome
}

func newDialer(cfg Config, transport interfaces.Transport, up *upgrader, backoff interfaces.BackoffPolicy,
	selector AddressSelector, directory interfaces.PeerDirectory, clk clock.Clock, metrics *Metrics, events chan<- Event) *dialer {
	return &dialer{
		cfg:       cfg,
		transport: transport,
		upgrader:  up,
		backoff:   backoff,
		selector:  selector,
		directory: directory,
		clock:     clk,
		metrics:   metrics,
		requests:  make(chan dialerRequest, DialerRequestChannelSize),
		events:    events,
		pending:   make(map[types.NodeID]*pendingDial),
		outcomes:  make(chan dialOutcome),
	}
}

// dial 提交拨号请求，ctx 结束时回复取消
func (d *dialer) dial(ctx context.Context, peer *types.Peer, reply chan<- DialResult) {
	select {
	case d.requests <- dialerRequest{peer: peer, reply: reply}:
	case <-ctx.Done():
		sendDialResult(reply, DialResult{Err: ErrManagerShutdown})
	}
}

// cancelPendingDial 提交取消请求，从不报错
func (d *dialer) cancelPendingDial(ctx context.Context, id types.NodeID) {
	select {
	case d.requests <- dialerRequest{isCancel: true, cancelID: id}:
	case <-ctx.Done():
	}
}

// run 拨号器主循环
func (d *dialer) run(ctx context.Context) {
	logger.Debug("拨号器启动")
	defer logger.Debug("拨号器退出")

	for {
		select {
		case req := <-d.requests:
			if req.isCancel {
				d.handleCancel(req.cancelID)
			} else {
				d.handleDial(ctx, req.peer, req.reply)
			}

		case out := <-d.outcomes:
			d.handleOutcome(ctx, out)

		case <-ctx.Done():
			for id, p := range d.pending {
				p.cancel()
				err := fmt.Errorf("%w: %s", ErrDialCancelled, id.ShortString())
				for _, r := range p.replies {
					sendDialResult(r, DialResult{Err: err})
				}
				for _, r := range p.redialReply {
					sendDialResult(r, DialResult{Err: err})
				}
			}
			d.pending = nil
			return
		}
	}
}

func (d *dialer) handleDial(ctx context.Context, peer *types.Peer, reply chan<- DialResult) {
	if p, ok := d.pending[peer.NodeID]; ok {
		if p.cancelled {
			logger.Debug("拨号已取消，结束后重新拨号", "peer", peer.NodeID.ShortString())
			p.redial = peer
			p.redialReply = append(p.redialReply, reply)
			return
		}
		logger.Debug("加入进行中的拨号", "peer", peer.NodeID.ShortString())
		p.replies = append(p.replies, reply)
		return
	}
	d.startDial(ctx, peer, []chan<- DialResult{reply})
}

// startDial 为 peer 发起新的拨号，replies 共享结果
func (d *dialer) startDial(ctx context.Context, peer *types.Peer, replies []chan<- DialResult) {
	dctx, cancel := context.WithCancel(ctx)
	d.pending[peer.NodeID] = &pendingDial{cancel: cancel, replies: replies}

	go func() {
		conn, err := d.dialPeer(dctx, peer)
		if err == nil {
			// PeerConnected 必须先于回复与子流事件
			if !emit(ctx, d.events, PeerConnected{Conn: conn}) {
				_ = conn.Close()
				conn, err = nil, ErrManagerShutdown
			} else {
				conn.start(ctx, d.events)
			}
		} else {
			emit(ctx, d.events, PeerConnectFailed{NodeID: peer.NodeID, Err: err})
		}

		select {
		case d.outcomes <- dialOutcome{id: peer.NodeID, conn: conn, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (d *dialer) handleCancel(id types.NodeID) {
	p, ok := d.pending[id]
	if !ok {
		logger.Debug("没有进行中的拨号可取消", "peer", id.ShortString())
		return
	}
	logger.Debug("取消拨号", "peer", id.ShortString())
	p.cancelled = true
	p.cancel()

	// 取消也作用于等待重拨的请求
	if p.redial != nil {
		err := fmt.Errorf("%w: %s", ErrDialCancelled, id.ShortString())
		for _, r := range p.redialReply {
			sendDialResult(r, DialResult{Err: err})
		}
		p.redial, p.redialReply = nil, nil
	}
}

func (d *dialer) handleOutcome(ctx context.Context, out dialOutcome) {
	p, ok := d.pending[out.id]
	if !ok {
		return
	}
	delete(d.pending, out.id)
	p.cancel()

	for _, r := range p.replies {
		sendDialResult(r, DialResult{Conn: out.conn, Err: out.err})
	}

	if p.redial != nil {
		if out.err == nil {
			for _, r := range p.redialReply {
				sendDialResult(r, DialResult{Conn: out.conn})
			}
			return
		}
		d.startDial(ctx, p.redial, p.redialReply)
	}
}

// dialPeer 按地址顺序尝试，最多 MaxDialAttempts 次
func (d *dialer) dialPeer(ctx context.Context, peer *types.Peer) (*PeerConnection, error) {
	addrs := d.dialableAddrs(peer)
	if len(addrs) == 0 {
		d.metrics.dials.WithLabelValues("failure").Inc()
		return nil, &DialError{NodeID: peer.NodeID, Errors: []error{ErrNoAddresses}}
	}

	dialErr := &DialError{NodeID: peer.NodeID}
	for attempt := 1; attempt <= d.cfg.MaxDialAttempts; attempt++ {
		if attempt > 1 {
			if err := d.wait(ctx, d.backoff.NextDelay(attempt-1)); err != nil {
				return nil, d.cancelled(peer.NodeID)
			}
		}
		if ctx.Err() != nil {
			return nil, d.cancelled(peer.NodeID)
		}

		addr := addrs[(attempt-1)%len(addrs)]
		dialErr.Attempts = attempt

		conn, err := d.attempt(ctx, peer, addr)
		d.metrics.dialAttempts.WithLabelValues(resultLabel(err)).Inc()
		if err == nil {
			if err := d.directory.MarkAddressSuccess(ctx, peer.NodeID, addr); err != nil {
				logger.Debug("记录地址成功失败", "peer", peer.NodeID.ShortString(), "error", err)
			}
			d.metrics.dials.WithLabelValues("success").Inc()
			logger.Debug("拨号成功", "peer", peer.NodeID.ShortString(), "addr", addr, "attempt", attempt)
			return conn, nil
		}

		if ctx.Err() != nil {
			return nil, d.cancelled(peer.NodeID)
		}

		logger.Debug("拨号尝试失败", "peer", peer.NodeID.ShortString(), "addr", addr, "attempt", attempt, "error", err)
		dialErr.Errors = append(dialErr.Errors, fmt.Errorf("%s: %w", addr, err))
		if err := d.directory.MarkAddressFailure(ctx, peer.NodeID, addr); err != nil {
			logger.Debug("记录地址失败失败", "peer", peer.NodeID.ShortString(), "error", err)
		}

		if isAuthFailure(err) {
			logger.Warn("对端身份认证失败，终止拨号", "peer", peer.NodeID.ShortString(), "addr", addr)
			break
		}
	}

	d.metrics.dials.WithLabelValues("failure").Inc()
	return nil, dialErr
}

// attempt 单次尝试：传输连接 + 升级，受 DialTimeout 约束
func (d *dialer) attempt(ctx context.Context, peer *types.Peer, addr ma.Multiaddr) (*PeerConnection, error) {
	actx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	raw, err := d.transport.Dial(actx, addr)
	if err != nil {
		return nil, err
	}
	conn, err := d.upgrader.upgradeOutbound(actx, raw, peer, addr)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// dialableAddrs 排序并过滤地址
func (d *dialer) dialableAddrs(peer *types.Peer) []ma.Multiaddr {
	var out []ma.Multiaddr
	for _, addr := range d.selector.Select(peer) {
		if !d.transport.CanDial(addr) {
			continue
		}
		if !d.cfg.AllowTestAddresses && isTestAddr(addr) {
			logger.Debug("跳过测试地址", "peer", peer.NodeID.ShortString(), "addr", addr)
			continue
		}
		out = append(out, addr)
	}
	return out
}

// wait 等待退避时间，ctx 结束时提前返回
func (d *dialer) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := d.clock.Timer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dialer) cancelled(id types.NodeID) error {
	d.metrics.dials.WithLabelValues("cancelled").Inc()
	return fmt.Errorf("%w: %s", ErrDialCancelled, id.ShortString())
}
