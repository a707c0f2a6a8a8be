package interfaces

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// PeerDirectory 节点目录
//
// 多个 goroutine（拨号器、监听器、外部调用方）并发访问，实现必须自带并发控制。
// Find 在节点不存在时返回满足 errors.Is(err, peerstore.ErrNotFound) 的错误。
type PeerDirectory interface {
	// Find 按 NodeID 查找节点，返回副本
	Find(ctx context.Context, id types.NodeID) (*types.Peer, error)

	// Upsert 插入或合并节点记录
	Upsert(ctx context.Context, peer *types.Peer) error

	// MarkAddressSuccess 记录地址拨号成功
	MarkAddressSuccess(ctx context.Context, id types.NodeID, addr ma.Multiaddr) error

	// MarkAddressFailure 记录地址拨号失败
	MarkAddressFailure(ctx context.Context, id types.NodeID, addr ma.Multiaddr) error

	// All 返回全部节点
	All(ctx context.Context) ([]*types.Peer, error)

	// Close 释放底层资源
	Close() error
}
