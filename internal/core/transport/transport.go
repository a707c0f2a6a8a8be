// Package transport 组合 TCP 与 QUIC 传输
//
// Multi 按地址形态把拨号与监听路由到第一个 CanDial 的子传输，
// 连接管理器只持有一个 interfaces.Transport。
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
)

var logger = log.Logger("core/transport")

// ErrNoTransport 没有可用的传输
var ErrNoTransport = errors.New("no suitable transport for address")

// Multi 多传输路由
type Multi struct {
	transports []interfaces.Transport
}

// 确保实现接口
var _ interfaces.Transport = (*Multi)(nil)

// NewMulti 创建多传输路由，顺序即匹配优先级
func NewMulti(transports ...interfaces.Transport) *Multi {
	return &Multi{transports: transports}
}

func (m *Multi) pick(addr ma.Multiaddr) (interfaces.Transport, error) {
	for _, t := range m.transports {
		if t.CanDial(addr) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, addr)
}

// CanDial 任一子传输可拨号即可
func (m *Multi) CanDial(addr ma.Multiaddr) bool {
	_, err := m.pick(addr)
	return err == nil
}

// Dial 拨号
func (m *Multi) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	t, err := m.pick(raddr)
	if err != nil {
		return nil, err
	}
	return t.Dial(ctx, raddr)
}

// Listen 监听
func (m *Multi) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	t, err := m.pick(laddr)
	if err != nil {
		return nil, err
	}
	return t.Listen(laddr)
}

// Len 返回子传输数量
func (m *Multi) Len() int {
	return len(m.transports)
}
