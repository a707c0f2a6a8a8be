package connmgr

import (
	"net"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ============================================================================
//                              地址过滤
// ============================================================================

// cidrFilter CIDR 白名单
type cidrFilter struct {
	allowed []*net.IPNet
}

func newCIDRFilter(allowed []*net.IPNet) *cidrFilter {
	return &cidrFilter{allowed: allowed}
}

// AllowIP 检查 IP 是否在白名单内，空白名单拒绝一切
func (f *cidrFilter) AllowIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, ipnet := range f.allowed {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// isTestIP 回环、链路本地、私有或未指定地址
func isTestIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// isTestAddr 地址是否为测试地址，DNS 等无法解析为 IP 的地址视为非测试地址
func isTestAddr(addr ma.Multiaddr) bool {
	ip, err := manet.ToIP(addr)
	if err != nil {
		return false
	}
	return isTestIP(ip)
}

// remoteInfo 从 net.Conn 的对端地址解析 multiaddr 与 IP
func remoteInfo(addr net.Addr) (ma.Multiaddr, net.IP) {
	if addr == nil {
		return nil, nil
	}
	m, err := manet.FromNetAddr(addr)
	if err != nil {
		return nil, nil
	}
	ip, err := manet.ToIP(m)
	if err != nil {
		return m, nil
	}
	return m, ip
}
