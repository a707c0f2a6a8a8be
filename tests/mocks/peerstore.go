package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// ErrPeerNotFound MockPeerDirectory 找不到节点时的默认错误
var ErrPeerNotFound = errors.New("mock: peer not found")

// MockPeerDirectory 模拟 PeerDirectory 接口实现
//
// 默认行为是一个内存表；设置 XxxFunc 可覆盖单个方法。
type MockPeerDirectory struct {
	// 可覆盖的方法
	FindFunc   func(ctx context.Context, id types.NodeID) (*types.Peer, error)
	UpsertFunc func(ctx context.Context, peer *types.Peer) error

	mu      sync.Mutex
	peers   map[types.NodeID]*types.Peer
	success map[types.NodeID]int
	failure map[types.NodeID]int
	finds   int
	closed  bool
}

// NewMockPeerDirectory 创建 MockPeerDirectory
func NewMockPeerDirectory(peers ...*types.Peer) *MockPeerDirectory {
	m := &MockPeerDirectory{
		peers:   make(map[types.NodeID]*types.Peer),
		success: make(map[types.NodeID]int),
		failure: make(map[types.NodeID]int),
	}
	for _, p := range peers {
		m.peers[p.NodeID] = p.Clone()
	}
	return m
}

// Find 查找节点，返回副本
func (m *MockPeerDirectory) Find(ctx context.Context, id types.NodeID) (*types.Peer, error) {
	m.mu.Lock()
	m.finds++
	m.mu.Unlock()

	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return p.Clone(), nil
}

// Upsert 插入或替换节点
func (m *MockPeerDirectory) Upsert(ctx context.Context, peer *types.Peer) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, peer)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.peers[peer.NodeID]; ok {
		peer = peer.Clone()
		peer.Flags |= existing.Flags
	}
	m.peers[peer.NodeID] = peer.Clone()
	return nil
}

// MarkAddressSuccess 记录地址拨号成功
func (m *MockPeerDirectory) MarkAddressSuccess(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.success[id]++
	if p, ok := m.peers[id]; ok {
		p.MarkAddressSuccess(addr, time.Now())
	}
	return nil
}

// MarkAddressFailure 记录地址拨号失败
func (m *MockPeerDirectory) MarkAddressFailure(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure[id]++
	if p, ok := m.peers[id]; ok {
		p.MarkAddressFailure(addr)
	}
	return nil
}

// All 返回全部节点
func (m *MockPeerDirectory) All(context.Context) ([]*types.Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p.Clone())
	}
	return out, nil
}

// Close 关闭目录
func (m *MockPeerDirectory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ============================================================================
//                              调用记录
// ============================================================================

// FindCalls 返回 Find 调用次数
func (m *MockPeerDirectory) FindCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finds
}

// SuccessCount 返回节点的成功记录次数
func (m *MockPeerDirectory) SuccessCount(id types.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.success[id]
}

// FailureCount 返回节点的失败记录次数
func (m *MockPeerDirectory) FailureCount(id types.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure[id]
}

// Peer 返回目录中的节点副本
func (m *MockPeerDirectory) Peer(id types.NodeID) (*types.Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	return p.Clone(), ok
}

// IsClosed 是否已关闭
func (m *MockPeerDirectory) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
