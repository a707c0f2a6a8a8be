package interfaces

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
)

// Transport 定义传输层接口
//
// 返回的连接是未加密的原始字节流，由 SecureChannel 升级。
type Transport interface {
	// Dial 拨号连接到指定地址
	Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error)

	// CanDial 检查是否支持拨号到指定地址
	CanDial(addr ma.Multiaddr) bool

	// Listen 在指定地址监听
	Listen(laddr ma.Multiaddr) (Listener, error)
}

// Listener 定义监听器接口
type Listener interface {
	// Accept 接受新连接
	Accept() (net.Conn, error)

	// Close 关闭监听器，阻塞中的 Accept 返回错误
	Close() error

	// Multiaddr 返回实际绑定的地址（端口 0 已解析）
	Multiaddr() ma.Multiaddr
}
