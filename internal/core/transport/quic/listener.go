package quic

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

// streamAcceptTimeout 新连接打开数据流的等待上限
const streamAcceptTimeout = 10 * time.Second

// Listener QUIC 监听器
//
// 后台 goroutine 接受 QUIC 连接，再为每个连接等待对端打开的第一条流，
// 就绪的流通过 ready 通道交给 Accept。
type Listener struct {
	ql    *quic.Listener
	addr  ma.Multiaddr
	ready chan net.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// 确保实现接口
var _ interfaces.Listener = (*Listener)(nil)

func newListener(ql *quic.Listener, addr ma.Multiaddr) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ql:     ql,
		addr:   addr,
		ready:  make(chan net.Conn),
		ctx:    ctx,
		cancel: cancel,
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ql.Accept(l.ctx)
		if err != nil {
			if !l.closed.Load() {
				logger.Debug("QUIC accept 结束", "err", err)
			}
			return
		}
		l.wg.Add(1)
		go l.awaitStream(conn)
	}
}

func (l *Listener) awaitStream(conn *quic.Conn) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(l.ctx, streamAcceptTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return
	}

	sc := newStreamConn(conn, stream)
	select {
	case l.ready <- sc:
	case <-l.ctx.Done():
		_ = sc.Close()
	}
}

// Accept 接受连接
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.ctx.Done():
		return nil, ErrListenerClosed
	}
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.cancel()
	err := l.ql.Close()
	l.wg.Wait()
	return err
}

// Multiaddr 返回实际绑定的地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}
