package quic

import (
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// streamConn 将 QUIC 连接上的单条双向流包装为 net.Conn
//
// 每个 QUIC 连接只承载一条流，Close 关闭整个 QUIC 连接。
type streamConn struct {
	*quic.Stream
	conn *quic.Conn

	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*streamConn)(nil)

func newStreamConn(conn *quic.Conn, stream *quic.Stream) *streamConn {
	return &streamConn{Stream: stream, conn: conn}
}

// LocalAddr 返回本端 UDP 地址
func (c *streamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr 返回对端 UDP 地址
func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close 关闭流与底层连接
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.Stream.CancelRead(0)
		_ = c.Stream.Close()
		c.closeErr = c.conn.CloseWithError(0, "")
	})
	return c.closeErr
}
