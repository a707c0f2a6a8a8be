// Package identity 管理本节点身份
//
// 身份由一把长期 Ed25519 密钥构成：
//   - 公钥用于 Noise 握手中的身份披露与校验
//   - NodeID 由公钥派生，是连接表、拨号表的键
//   - Features 与公布地址在协议识别阶段发送给对端
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              Identity 实现
// ============================================================================

// Identity 本节点身份
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	nodeID     types.NodeID
	features   types.PeerFeatures

	mu        sync.RWMutex
	addresses []ma.Multiaddr
}

// New 从私钥创建身份
func New(priv ed25519.PrivateKey, features types.PeerFeatures) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		privateKey: priv,
		publicKey:  pub,
		nodeID:     types.NodeIDFromPublicKey(pub),
		features:   features,
	}, nil
}

// Generate 生成新的随机身份
func Generate(features types.PeerFeatures) (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return New(priv, features)
}

// NodeID 返回节点 ID
func (i *Identity) NodeID() types.NodeID {
	return i.nodeID
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.privateKey
}

// Features 返回本节点能力
func (i *Identity) Features() types.PeerFeatures {
	return i.features
}

// Sign 签名数据
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.privateKey, data)
}

// PublicAddresses 返回对外公布的地址
func (i *Identity) PublicAddresses() []ma.Multiaddr {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]ma.Multiaddr(nil), i.addresses...)
}

// SetPublicAddresses 替换对外公布的地址
func (i *Identity) SetPublicAddresses(addrs []ma.Multiaddr) {
	i.mu.Lock()
	i.addresses = append([]ma.Multiaddr(nil), addrs...)
	i.mu.Unlock()
}

// AddPublicAddressIfEmpty 未配置公布地址时使用监听器实际绑定的地址
//
// 返回是否发生了替换。
func (i *Identity) AddPublicAddressIfEmpty(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.addresses) > 0 {
		return false
	}
	i.addresses = []ma.Multiaddr{addr}
	return true
}

// FeaturesForRole 返回角色对应的能力集
func FeaturesForRole(role string) types.PeerFeatures {
	if role == "client" {
		return types.FeaturesCommunicationClient
	}
	return types.FeaturesCommunicationNode
}
