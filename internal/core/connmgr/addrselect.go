package connmgr

import (
	"sort"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// AddressSelector 决定拨号时尝试地址的顺序
//
// 必须是确定性的：相同的节点记录得到相同的顺序。
type AddressSelector interface {
	Select(peer *types.Peer) []ma.Multiaddr
}

// AddressSelectorFunc 函数形式的地址选择器
type AddressSelectorFunc func(peer *types.Peer) []ma.Multiaddr

// Select 调用函数本身
func (f AddressSelectorFunc) Select(peer *types.Peer) []ma.Multiaddr {
	return f(peer)
}

// RecentSuccessSelector 默认地址选择器
//
// 排序规则依次为：
//  1. 最近成功时间晚的在前
//  2. 失败次数少的在前，从未失败的最优先
//  3. 地址字符串字典序
type RecentSuccessSelector struct{}

// Select 返回排序后的地址
func (RecentSuccessSelector) Select(peer *types.Peer) []ma.Multiaddr {
	addrs := make([]*types.PeerAddress, 0, len(peer.Addresses))
	for _, pa := range peer.Addresses {
		if pa != nil && pa.Addr != nil {
			addrs = append(addrs, pa)
		}
	}

	sort.SliceStable(addrs, func(i, j int) bool {
		a, b := addrs[i], addrs[j]
		if !a.LastSuccess.Equal(b.LastSuccess) {
			return a.LastSuccess.After(b.LastSuccess)
		}
		if a.FailedAttempts != b.FailedAttempts {
			return a.FailedAttempts < b.FailedAttempts
		}
		return a.Addr.String() < b.Addr.String()
	})

	out := make([]ma.Multiaddr, len(addrs))
	for i, pa := range addrs {
		out[i] = pa.Addr
	}
	return out
}
