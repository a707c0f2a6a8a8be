package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              Network - 网络标识
// ============================================================================

// Network 网络标识
//
// 每个入站连接的第一个字节即为拨号方的网络字节，
// 监听方据此区分 comms 连接与存活检测会话，并拒绝其它网络的节点。
type Network byte

const (
	// NetworkMainNet 主网
	NetworkMainNet Network = 0x00
	// NetworkLocalNet 本地网络
	NetworkLocalNet Network = 0x10
	// NetworkRidcully 测试网 Ridcully
	NetworkRidcully Network = 0x21
	// NetworkStibbons 测试网 Stibbons
	NetworkStibbons Network = 0x22
	// NetworkWeatherwax 测试网 Weatherwax
	NetworkWeatherwax Network = 0x23
)

// LivenessWireByte 存活检测会话的线路模式字节
const LivenessWireByte byte = 0x46

var networkNames = map[Network]string{
	NetworkMainNet:    "mainnet",
	NetworkLocalNet:   "localnet",
	NetworkRidcully:   "ridcully",
	NetworkStibbons:   "stibbons",
	NetworkWeatherwax: "weatherwax",
}

// ParseNetwork 解析网络名称（大小写不敏感）
func ParseNetwork(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for n, s := range networkNames {
		if s == name {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid network %q", name)
}

// NetworkFromByte 从线路字节解析网络
func NetworkFromByte(b byte) (Network, bool) {
	n := Network(b)
	_, ok := networkNames[n]
	return n, ok
}

// Byte 返回线路字节
func (n Network) Byte() byte {
	return byte(n)
}

// String 返回网络名称
func (n Network) String() string {
	if s, ok := networkNames[n]; ok {
		return s
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(n))
}

// MarshalText 实现 encoding.TextMarshaler
func (n Network) MarshalText() ([]byte, error) {
	if _, ok := networkNames[n]; !ok {
		return nil, fmt.Errorf("invalid network 0x%02x", byte(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (n *Network) UnmarshalText(text []byte) error {
	parsed, err := ParseNetwork(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
