package peerstore

import (
	"fmt"

	"github.com/dep2p/go-comms/pkg/types"
)

// validate 检查待写入记录
func validate(p *types.Peer) error {
	if p == nil {
		return fmt.Errorf("%w: nil peer", ErrInvalidPublicKey)
	}
	if !p.NodeID.MatchesPublicKey(p.PublicKey) {
		return fmt.Errorf("%w: %s", ErrInvalidPublicKey, p.NodeID.ShortString())
	}
	return nil
}

// merge 将 incoming 合并进 existing 的副本
//
// 合并规则：
//   - 地址取并集，已有地址的拨号统计保留，LastSeen 取较新者
//   - 能力位、UserAgent、协议列表以 incoming 中非空的值为准
//   - 标志位取并集（封禁不会被一次握手抹掉）
//   - AddedAt 保留最早值，LastConnectedAt 取较新者
func merge(existing, incoming *types.Peer) *types.Peer {
	if existing == nil {
		return incoming.Clone()
	}

	out := existing.Clone()
	for _, pa := range incoming.Addresses {
		out.AddAddress(pa.Addr, pa.LastSeen)
	}
	if incoming.Features != 0 {
		out.Features = incoming.Features
	}
	if incoming.UserAgent != "" {
		out.UserAgent = incoming.UserAgent
	}
	if len(incoming.SupportedProtocols) > 0 {
		out.SupportedProtocols = append([]types.ProtocolID(nil), incoming.SupportedProtocols...)
	}
	out.Flags |= incoming.Flags
	if out.AddedAt.IsZero() || (!incoming.AddedAt.IsZero() && incoming.AddedAt.Before(out.AddedAt)) {
		out.AddedAt = incoming.AddedAt
	}
	if incoming.LastConnectedAt.After(out.LastConnectedAt) {
		out.LastConnectedAt = incoming.LastConnectedAt
	}
	return out
}
