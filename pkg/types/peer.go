package types

import (
	"crypto/ed25519"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              Peer - 节点记录
// ============================================================================

// PeerFeatures 节点能力位
type PeerFeatures uint64

const (
	// FeatureMessagePropagation 转发消息
	FeatureMessagePropagation PeerFeatures = 1 << 0
	// FeatureDHTStoreForward 存储转发
	FeatureDHTStoreForward PeerFeatures = 1 << 1

	// FeaturesCommunicationNode 基础节点能力
	FeaturesCommunicationNode = FeatureMessagePropagation | FeatureDHTStoreForward
	// FeaturesCommunicationClient 客户端（钱包）能力
	FeaturesCommunicationClient PeerFeatures = 0
)

// Has 检查是否包含指定能力
func (f PeerFeatures) Has(other PeerFeatures) bool {
	return f&other == other
}

// PeerFlags 节点标志位
type PeerFlags uint8

const (
	// FlagBanned 已封禁
	FlagBanned PeerFlags = 1 << 0
	// FlagOffline 离线
	FlagOffline PeerFlags = 1 << 1
)

// PeerAddress 节点地址及拨号统计
type PeerAddress struct {
	Addr ma.Multiaddr

	// LastSeen 最近一次获知该地址的时间
	LastSeen time.Time

	// LastSuccess 最近一次拨号成功的时间
	LastSuccess time.Time

	// FailedAttempts 自上次成功以来的连续失败次数
	FailedAttempts uint32
}

// Peer 远端节点记录
//
// 由 PeerDirectory 持有，通过 NodeID 查找。
// 目录返回的是副本，调用方修改不会影响目录。
type Peer struct {
	PublicKey ed25519.PublicKey
	NodeID    NodeID
	Addresses []*PeerAddress
	Features  PeerFeatures
	Flags     PeerFlags

	// UserAgent 与 SupportedProtocols 来自协议识别阶段
	UserAgent          string
	SupportedProtocols []ProtocolID

	AddedAt         time.Time
	LastConnectedAt time.Time
}

// NewPeer 创建节点记录
func NewPeer(pub ed25519.PublicKey, addrs []ma.Multiaddr, features PeerFeatures) *Peer {
	p := &Peer{
		PublicKey: pub,
		NodeID:    NodeIDFromPublicKey(pub),
		Features:  features,
		AddedAt:   time.Now(),
	}
	for _, a := range addrs {
		p.AddAddress(a, p.AddedAt)
	}
	return p
}

// AddAddress 添加地址，已存在时只更新 LastSeen
func (p *Peer) AddAddress(addr ma.Multiaddr, seen time.Time) {
	if addr == nil {
		return
	}
	if pa := p.findAddress(addr); pa != nil {
		if seen.After(pa.LastSeen) {
			pa.LastSeen = seen
		}
		return
	}
	p.Addresses = append(p.Addresses, &PeerAddress{Addr: addr, LastSeen: seen})
}

// MarkAddressSuccess 记录地址拨号成功
func (p *Peer) MarkAddressSuccess(addr ma.Multiaddr, at time.Time) {
	pa := p.findAddress(addr)
	if pa == nil {
		p.AddAddress(addr, at)
		pa = p.findAddress(addr)
	}
	pa.LastSuccess = at
	pa.LastSeen = at
	pa.FailedAttempts = 0
	p.LastConnectedAt = at
	p.Flags &^= FlagOffline
}

// MarkAddressFailure 记录地址拨号失败
func (p *Peer) MarkAddressFailure(addr ma.Multiaddr) {
	if pa := p.findAddress(addr); pa != nil {
		pa.FailedAttempts++
	}
}

func (p *Peer) findAddress(addr ma.Multiaddr) *PeerAddress {
	for _, pa := range p.Addresses {
		if pa.Addr.Equal(addr) {
			return pa
		}
	}
	return nil
}

// AddressList 返回地址列表
func (p *Peer) AddressList() []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(p.Addresses))
	for _, pa := range p.Addresses {
		out = append(out, pa.Addr)
	}
	return out
}

// IsBanned 是否已封禁
func (p *Peer) IsBanned() bool {
	return p.Flags&FlagBanned != 0
}

// Clone 深拷贝
func (p *Peer) Clone() *Peer {
	if p == nil {
		return nil
	}
	c := *p
	c.PublicKey = append(ed25519.PublicKey(nil), p.PublicKey...)
	c.Addresses = make([]*PeerAddress, len(p.Addresses))
	for i, pa := range p.Addresses {
		cp := *pa
		c.Addresses[i] = &cp
	}
	c.SupportedProtocols = append([]ProtocolID(nil), p.SupportedProtocols...)
	return &c
}
