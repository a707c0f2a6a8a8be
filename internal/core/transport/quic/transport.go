// Package quic 提供基于 QUIC 的传输层实现
//
// QUIC 在这里只作为可靠有序的字节管道使用：每个 QUIC 连接打开一条双向流，
// 之后与 TCP 一样经过网络字节、Noise 握手、协议识别和 yamux 升级。
// 地址形如 /ip4/1.2.3.4/udp/18189/quic-v1。
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
)

var logger = log.Logger("core/transport/quic")

var (
	// ErrUnsupportedAddr 地址不是 QUIC 地址
	ErrUnsupportedAddr = errors.New("unsupported quic address")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")
)

// Transport QUIC 传输层实现
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quic.Config
}

// 确保实现接口
var _ interfaces.Transport = (*Transport)(nil)

// New 创建 QUIC 传输
func New(maxIdleTimeout time.Duration) (*Transport, error) {
	tlsConf, err := newTLSConfig()
	if err != nil {
		return nil, err
	}
	keepAlive := maxIdleTimeout / 2
	return &Transport{
		tlsConf: tlsConf,
		quicConf: &quic.Config{
			MaxIdleTimeout:  maxIdleTimeout,
			KeepAlivePeriod: keepAlive,
		},
	}, nil
}

// IsQUICAddr 检查地址是否为 <ip>/udp/<port>/quic-v1 形式
func IsQUICAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) != 3 {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return false
	}
	return protos[1].Code == ma.P_UDP && protos[2].Code == ma.P_QUIC_V1
}

// udpPart 去掉 /quic-v1 后缀，得到 manet 可解析的 UDP 地址
func udpPart(addr ma.Multiaddr) (string, string, error) {
	udp, _ := ma.SplitLast(addr)
	if udp == nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedAddr, addr)
	}
	return manet.DialArgs(udp)
}

// CanDial 检查是否是可拨号的 QUIC 地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return IsQUICAddr(addr)
}

// Dial 建立出站连接并打开数据流
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if !IsQUICAddr(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}
	_, host, err := udpPart(raddr)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, host, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return newStreamConn(conn, stream), nil
}

// Listen 在指定地址监听
func (t *Transport) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	if !IsQUICAddr(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}
	_, host, err := udpPart(laddr)
	if err != nil {
		return nil, err
	}

	ql, err := quic.ListenAddr(host, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}

	udp, err := manet.FromNetAddr(ql.Addr())
	if err != nil {
		_ = ql.Close()
		return nil, fmt.Errorf("获取监听地址失败: %w", err)
	}
	bound := udp.Encapsulate(ma.StringCast("/quic-v1"))
	logger.Debug("QUIC 监听已建立", "addr", bound.String())

	return newListener(ql, bound), nil
}
