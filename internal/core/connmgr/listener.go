package connmgr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              入站监听器
// ============================================================================

// listener 入站监听器
//
// 每个连接依次经过：测试地址过滤 -> 速率限制 -> 握手名额 -> 首字节 ->
// 存活检测会话或握手与协议识别。握手名额按监听器独立计算，
// 存活检测会话数在所有监听器之间共享。
type listener struct {
	name      string
	bindAddr  ma.Multiaddr
	transport interfaces.Transport
	upgrader  *upgrader
	cfg       Config

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	liveness *livenessTracker
	allowed  *cidrFilter

	events    chan<- Event
	directory interfaces.PeerDirectory
	metrics   *Metrics

	ln interfaces.Listener
	wg sync.WaitGroup
}

type listenerParams struct {
	name      string
	bindAddr  ma.Multiaddr
	transport interfaces.Transport
	upgrader  *upgrader
	cfg       Config
	liveness  *livenessTracker
	events    chan<- Event
	directory interfaces.PeerDirectory
	metrics   *Metrics
}

func newListener(p listenerParams) *listener {
	l := &listener{
		name:      p.name,
		bindAddr:  p.bindAddr,
		transport: p.transport,
		upgrader:  p.upgrader,
		cfg:       p.cfg,
		sem:       semaphore.NewWeighted(int64(p.cfg.MaxSimultaneousInboundConnects)),
		liveness:  p.liveness,
		allowed:   newCIDRFilter(p.cfg.LivenessCIDRAllowlist),
		events:    p.events,
		directory: p.directory,
		metrics:   p.metrics,
	}
	if p.cfg.InboundConnectRate > 0 {
		burst := int(p.cfg.InboundConnectRate)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(p.cfg.InboundConnectRate), burst)
	}
	return l
}

// Listen 绑定地址并在后台接受连接，返回实际绑定的地址
//
// ctx 结束时关闭监听器，Wait 等待接受循环与进行中的握手退出。
func (l *listener) Listen(ctx context.Context) (ma.Multiaddr, error) {
	ln, err := l.transport.Listen(l.bindAddr)
	if err != nil {
		return nil, err
	}
	l.ln = ln
	bound := ln.Multiaddr()
	logger.Info("监听器已启动", "listener", l.name, "addr", bound)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop(ctx)
	}()
	return bound, nil
}

// Wait 等待所有 goroutine 退出
func (l *listener) Wait() {
	l.wg.Wait()
}

func (l *listener) acceptLoop(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()
	defer l.ln.Close()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("监听器接受连接失败", "listener", l.name, "error", err)
			}
			logger.Debug("监听器退出", "listener", l.name)
			return
		}
		l.handleConn(ctx, conn)
	}
}

// handleConn 在接受循环中执行握手前的检查，通过后交给独立 goroutine
func (l *listener) handleConn(ctx context.Context, conn net.Conn) {
	remoteAddr, ip := remoteInfo(conn.RemoteAddr())
	livenessCandidate := l.liveness.hasCapacity() && l.allowed.AllowIP(ip)
	testAddr := ip != nil && isTestIP(ip)

	if testAddr && !l.cfg.AllowTestAddresses && !livenessCandidate {
		l.reject(ctx, conn, remoteAddr, rejectTestAddress)
		return
	}
	if l.limiter != nil && !l.limiter.Allow() {
		l.reject(ctx, conn, remoteAddr, rejectRateLimited)
		return
	}
	if !l.sem.TryAcquire(1) {
		l.reject(ctx, conn, remoteAddr, rejectTooManyInbound)
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.serve(ctx, conn, remoteAddr, testAddr, livenessCandidate)
	}()
}

func (l *listener) reject(ctx context.Context, conn net.Conn, remoteAddr ma.Multiaddr, reason string) {
	l.metrics.inboundRejected.WithLabelValues(reason).Inc()
	_ = conn.Close()
	logger.Debug("拒绝入站连接", "listener", l.name, "remote", remoteAddr, "reason", reason)
	emit(ctx, l.events, PeerInboundConnectFailed{
		RemoteAddr: remoteAddr,
		Err:        fmt.Errorf("%w: %s", ErrInboundRejected, reason),
	})
}

// serve 持有一个握手名额处理单个入站连接
func (l *listener) serve(ctx context.Context, conn net.Conn, remoteAddr ma.Multiaddr, testAddr, livenessCandidate bool) {
	released := false
	release := func() {
		if !released {
			released = true
			l.sem.Release(1)
		}
	}
	defer release()

	wireByte, err := l.readWireByte(conn)
	if err != nil {
		l.fail(ctx, conn, remoteAddr, err)
		return
	}

	switch {
	case wireByte == types.LivenessWireByte && livenessCandidate:
		if !l.liveness.tryAcquire() {
			l.reject(ctx, conn, remoteAddr, rejectLivenessFull)
			return
		}
		// 存活检测会话不占用握手名额
		release()
		defer l.liveness.release()
		if err := newLivenessSession(conn, LivenessIdleTimeout).run(ctx); err != nil {
			logger.Debug("存活检测会话出错", "remote", remoteAddr, "error", err)
		}

	case wireByte == l.cfg.Network.Byte():
		if testAddr && !l.cfg.AllowTestAddresses {
			l.reject(ctx, conn, remoteAddr, rejectTestAddress)
			return
		}
		l.handshake(ctx, conn, remoteAddr)

	default:
		l.metrics.inboundRejected.WithLabelValues(rejectWireByte).Inc()
		l.fail(ctx, conn, remoteAddr, fmt.Errorf("%w: 0x%02x", ErrUnexpectedWireByte, wireByte))
	}
}

// readWireByte 在 TimeToFirstByte 内读取首字节
func (l *listener) readWireByte(conn net.Conn) (byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(l.cfg.TimeToFirstByte))
	var b [1]byte
	if _, err := conn.Read(b[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, ErrTimeToFirstByte
		}
		return 0, fmt.Errorf("read wire byte: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return b[0], nil
}

func (l *listener) handshake(ctx context.Context, conn net.Conn, remoteAddr ma.Multiaddr) {
	hctx, cancel := context.WithTimeout(ctx, l.cfg.HandshakeTimeout)
	defer cancel()

	pc, err := l.upgrader.upgradeInbound(hctx, conn, remoteAddr)
	if err != nil {
		l.fail(ctx, conn, remoteAddr, err)
		return
	}

	if err := l.recordPeer(ctx, pc); err != nil {
		_ = pc.Close()
		l.fail(ctx, conn, remoteAddr, err)
		return
	}

	logger.Info("入站连接已建立", "listener", l.name, "peer", pc.PeerNodeID().ShortString(), "remote", remoteAddr)
	if !emit(ctx, l.events, PeerConnected{Conn: pc}) {
		_ = pc.Close()
		return
	}
	pc.start(ctx, l.events)
}

// recordPeer 将入站节点写入目录，已封禁的节点返回错误
func (l *listener) recordPeer(ctx context.Context, pc *PeerConnection) error {
	existing, err := l.directory.Find(ctx, pc.PeerNodeID())
	if err == nil && existing.IsBanned() {
		return fmt.Errorf("%w: %s", ErrPeerBanned, pc.PeerNodeID().ShortString())
	}

	id := pc.PeerIdentity()
	peer := types.NewPeer(pc.PublicKey(), id.Addresses, id.Features)
	peer.UserAgent = id.UserAgent
	peer.SupportedProtocols = id.Protocols
	peer.LastConnectedAt = pc.EstablishedAt()
	if err := l.directory.Upsert(ctx, peer); err != nil {
		logger.Warn("写入节点目录失败", "peer", pc.PeerNodeID().ShortString(), "error", err)
	}
	return nil
}

func (l *listener) fail(ctx context.Context, conn net.Conn, remoteAddr ma.Multiaddr, err error) {
	l.metrics.inboundFailed.Inc()
	_ = conn.Close()
	logger.Debug("入站连接失败", "listener", l.name, "remote", remoteAddr, "error", err)
	emit(ctx, l.events, PeerInboundConnectFailed{RemoteAddr: remoteAddr, Err: err})
}
