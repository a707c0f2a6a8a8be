package mocks

import (
	"context"
	"errors"
	"net"
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

// ErrConnectionRefused 默认拨号错误
var ErrConnectionRefused = errors.New("mock: connection refused")

// ErrListenerClosed 监听器已关闭
var ErrListenerClosed = errors.New("mock: listener closed")

// MockTransport 模拟 Transport 接口实现
//
// 并发安全，拨号器会在多个 goroutine 中调用 Dial。
type MockTransport struct {
	// 可覆盖的方法
	DialFunc    func(ctx context.Context, addr ma.Multiaddr) (net.Conn, error)
	ListenFunc  func(addr ma.Multiaddr) (interfaces.Listener, error)
	CanDialFunc func(addr ma.Multiaddr) bool

	mu          sync.Mutex
	dialCalls   []ma.Multiaddr
	listenCalls []ma.Multiaddr
}

// NewMockTransport 创建带有默认值的 MockTransport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Dial 拨号连接，默认返回 ErrConnectionRefused
func (m *MockTransport) Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
	m.mu.Lock()
	m.dialCalls = append(m.dialCalls, addr)
	m.mu.Unlock()

	if m.DialFunc != nil {
		return m.DialFunc(ctx, addr)
	}
	return nil, ErrConnectionRefused
}

// Listen 监听地址，默认返回 MockListener
func (m *MockTransport) Listen(addr ma.Multiaddr) (interfaces.Listener, error) {
	m.mu.Lock()
	m.listenCalls = append(m.listenCalls, addr)
	m.mu.Unlock()

	if m.ListenFunc != nil {
		return m.ListenFunc(addr)
	}
	return NewMockListener(addr), nil
}

// CanDial 检查是否可以拨号
func (m *MockTransport) CanDial(addr ma.Multiaddr) bool {
	if m.CanDialFunc != nil {
		return m.CanDialFunc(addr)
	}
	return true
}

// DialCalls 返回 Dial 调用记录
func (m *MockTransport) DialCalls() []ma.Multiaddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ma.Multiaddr(nil), m.dialCalls...)
}

// ListenCalls 返回 Listen 调用记录
func (m *MockTransport) ListenCalls() []ma.Multiaddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ma.Multiaddr(nil), m.listenCalls...)
}

// ============================================================================
//                              MockListener
// ============================================================================

// MockListener 模拟 Listener，通过 Push 注入入站连接
type MockListener struct {
	AddrValue ma.Multiaddr

	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMockListener 创建 MockListener
func NewMockListener(addr ma.Multiaddr) *MockListener {
	return &MockListener{
		AddrValue: addr,
		conns:     make(chan net.Conn, 16),
		closed:    make(chan struct{}),
	}
}

// Push 注入一个入站连接，监听器已关闭时返回 false
func (l *MockListener) Push(conn net.Conn) bool {
	select {
	case <-l.closed:
		return false
	case l.conns <- conn:
		return true
	}
}

// Accept 接受连接
func (l *MockListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

// Close 关闭监听器
func (l *MockListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// Multiaddr 返回监听地址
func (l *MockListener) Multiaddr() ma.Multiaddr {
	return l.AddrValue
}

// Closed 监听器是否已关闭
func (l *MockListener) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
