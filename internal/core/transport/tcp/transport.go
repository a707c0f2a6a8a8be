// Package tcp 提供基于 TCP 的传输层实现
//
// 返回的是原始字节流，加密与多路复用由上层升级流程完成。
// 地址形如 /ip4/1.2.3.4/tcp/18189、/ip6/::1/tcp/18189 或 /dns4/host/tcp/18189。
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
)

var logger = log.Logger("core/transport/tcp")

// ErrUnsupportedAddr 地址不是 TCP 地址
var ErrUnsupportedAddr = errors.New("unsupported tcp address")

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport TCP 传输层实现
type Transport struct {
	keepAlive time.Duration
}

// 确保实现接口
var _ interfaces.Transport = (*Transport)(nil)

// New 创建 TCP 传输
//
// keepAlive 为 0 时使用系统默认值。
func New(keepAlive time.Duration) *Transport {
	return &Transport{keepAlive: keepAlive}
}

// CanDial 检查是否是可拨号的 TCP 地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return IsTCPAddr(addr)
}

// IsTCPAddr 检查地址是否为 <ip|dns>/tcp 形式
func IsTCPAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) != 2 {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return false
	}
	return protos[1].Code == ma.P_TCP
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if !IsTCPAddr(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}
	network, host, err := manet.DialArgs(raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddr, err)
	}

	d := &net.Dialer{KeepAlive: t.keepAlive}
	conn, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Listen 在指定地址监听
func (t *Transport) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	if !IsTCPAddr(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}
	network, host, err := manet.DialArgs(laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddr, err)
	}

	lc := net.ListenConfig{KeepAlive: t.keepAlive}
	nl, err := lc.Listen(context.Background(), network, host)
	if err != nil {
		return nil, err
	}

	bound, err := manet.FromNetAddr(nl.Addr())
	if err != nil {
		_ = nl.Close()
		return nil, fmt.Errorf("获取监听地址失败: %w", err)
	}
	logger.Debug("TCP 监听已建立", "addr", bound.String())

	return newListener(nl, bound), nil
}
