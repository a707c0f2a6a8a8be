package peerstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// 确保实现了接口
var _ interfaces.PeerDirectory = (*MemoryDirectory)(nil)

// MemoryDirectory 内存节点目录
type MemoryDirectory struct {
	mu     sync.RWMutex
	peers  map[types.NodeID]*types.Peer
	closed atomic.Bool

	// now 可在测试中替换
	now func() time.Time
}

// NewMemoryDirectory 创建内存节点目录
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		peers: make(map[types.NodeID]*types.Peer),
		now:   time.Now,
	}
}

// Find 按 NodeID 查找节点
func (d *MemoryDirectory) Find(_ context.Context, id types.NodeID) (*types.Peer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.peers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Upsert 插入或合并节点记录
func (d *MemoryDirectory) Upsert(_ context.Context, peer *types.Peer) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := validate(peer); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[peer.NodeID] = merge(d.peers[peer.NodeID], peer)
	return nil
}

// MarkAddressSuccess 记录地址拨号成功
func (d *MemoryDirectory) MarkAddressSuccess(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	return d.update(id, func(p *types.Peer) {
		p.MarkAddressSuccess(addr, d.now())
	})
}

// MarkAddressFailure 记录地址拨号失败
func (d *MemoryDirectory) MarkAddressFailure(_ context.Context, id types.NodeID, addr ma.Multiaddr) error {
	return d.update(id, func(p *types.Peer) {
		p.MarkAddressFailure(addr)
	})
}

func (d *MemoryDirectory) update(id types.NodeID, fn func(p *types.Peer)) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.peers[id]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}

// All 返回全部节点，按 NodeID 排序
func (d *MemoryDirectory) All(_ context.Context) ([]*types.Peer, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	d.mu.RLock()
	out := make([]*types.Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].NodeID.Compare(out[j].NodeID) < 0
	})
	return out, nil
}

// Close 关闭目录
func (d *MemoryDirectory) Close() error {
	d.closed.Store(true)
	return nil
}
