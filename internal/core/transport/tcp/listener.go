package tcp

import (
	"net"
	"sync/atomic"

	tec "github.com/jbenet/go-temp-err-catcher"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

// Listener TCP 监听器
type Listener struct {
	ln      net.Listener
	addr    ma.Multiaddr
	catcher tec.TempErrCatcher
	closed  atomic.Bool
}

// 确保实现接口
var _ interfaces.Listener = (*Listener)(nil)

func newListener(ln net.Listener, addr ma.Multiaddr) *Listener {
	return &Listener{ln: ln, addr: addr}
}

// Accept 接受连接
//
// 临时错误（如 EMFILE）由 TempErrCatcher 退避后重试，不向上层返回。
func (l *Listener) Accept() (net.Conn, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.closed.Load() && l.catcher.IsTemporary(err) {
				logger.Debug("accept 临时错误，重试", "err", err)
				continue
			}
			return nil, err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return conn, nil
	}
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.ln.Close()
}

// Multiaddr 返回实际绑定的地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}
