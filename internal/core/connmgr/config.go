package connmgr

import (
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/types"
)

// 通道容量
const (
	// EventChannelSize 内部事件通道容量
	EventChannelSize = 32

	// DialerRequestChannelSize 拨号器请求通道容量
	DialerRequestChannelSize = 32

	// RequestChannelSize 外部请求通道建议容量
	RequestChannelSize = 32
)

// Config 连接管理器运行时配置
//
// 构造之后不可修改。
type Config struct {
	// ListenerAddress 主监听地址
	ListenerAddress ma.Multiaddr

	// AuxiliaryListenerAddress 辅助 TCP 监听地址，nil 表示禁用
	AuxiliaryListenerAddress ma.Multiaddr

	// AuxiliaryListenerRequired 辅助监听绑定失败时是否终止
	AuxiliaryListenerRequired bool

	// Network 本节点所在网络，决定入站首字节与协议识别校验
	Network types.Network

	// MaxDialAttempts 单次拨号在所有地址上的最大尝试次数
	MaxDialAttempts int

	// MaxSimultaneousInboundConnects 每个监听器同时进行中的入站握手上限
	MaxSimultaneousInboundConnects int

	// InboundConnectRate 每秒接受的入站连接数上限，0 表示不限
	InboundConnectRate float64

	// AllowTestAddresses 是否允许回环、链路本地、私有地址
	AllowTestAddresses bool

	// TimeToFirstByte 入站连接等待首字节的超时
	TimeToFirstByte time.Duration

	// HandshakeTimeout 首字节之后握手与协议识别的超时
	HandshakeTimeout time.Duration

	// DialTimeout 单次出站尝试的超时
	DialTimeout time.Duration

	// LivenessMaxSessions 并发存活检测会话上限，0 表示禁用
	LivenessMaxSessions int

	// LivenessCIDRAllowlist 允许存活检测的来源网段
	LivenessCIDRAllowlist []*net.IPNet

	// UserAgent 协议识别阶段公布的客户端标识
	UserAgent string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	_, localhost, _ := net.ParseCIDR(config.DefaultLivenessAllowlistCIDR)
	return Config{
		ListenerAddress:                ma.StringCast(config.DefaultListenerAddress),
		Network:                        types.NetworkMainNet,
		MaxDialAttempts:                config.DefaultMaxDialAttempts,
		MaxSimultaneousInboundConnects: config.DefaultMaxSimultaneousInboundConnects,
		TimeToFirstByte:                config.DefaultTimeToFirstByte,
		HandshakeTimeout:               config.DefaultHandshakeTimeout,
		DialTimeout:                    config.DefaultDialTimeout,
		LivenessMaxSessions:            config.DefaultLivenessMaxSessions,
		LivenessCIDRAllowlist:          []*net.IPNet{localhost},
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ListenerAddress == nil {
		return fmt.Errorf("%w: listener address is required", ErrInvalidConfig)
	}
	if c.AuxiliaryListenerAddress != nil {
		if _, err := c.AuxiliaryListenerAddress.ValueForProtocol(ma.P_TCP); err != nil {
			return fmt.Errorf("%w: auxiliary listener must be a tcp address", ErrInvalidConfig)
		}
	}
	if c.MaxDialAttempts < 1 {
		return fmt.Errorf("%w: max dial attempts must be at least 1", ErrInvalidConfig)
	}
	if c.MaxSimultaneousInboundConnects < 1 {
		return fmt.Errorf("%w: max simultaneous inbound connects must be at least 1", ErrInvalidConfig)
	}
	if c.InboundConnectRate < 0 {
		return fmt.Errorf("%w: inbound connect rate must not be negative", ErrInvalidConfig)
	}
	if c.TimeToFirstByte <= 0 || c.HandshakeTimeout <= 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.LivenessMaxSessions < 0 {
		return fmt.Errorf("%w: liveness max sessions must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建连接管理器配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return DefaultConfig(), nil
	}
	c := cfg.ConnMgr
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	out := Config{
		AuxiliaryListenerRequired:      c.AuxiliaryListenerRequired,
		MaxDialAttempts:                c.MaxDialAttempts,
		MaxSimultaneousInboundConnects: c.MaxSimultaneousInboundConnects,
		InboundConnectRate:             c.InboundConnectRate,
		AllowTestAddresses:             c.AllowTestAddresses,
		TimeToFirstByte:                c.TimeToFirstByte.Duration(),
		HandshakeTimeout:               c.HandshakeTimeout.Duration(),
		DialTimeout:                    c.DialTimeout.Duration(),
		LivenessMaxSessions:            c.LivenessMaxSessions,
		UserAgent:                      c.UserAgent,
	}

	var err error
	if out.ListenerAddress, err = ma.NewMultiaddr(c.ListenerAddress); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.AuxiliaryListenerAddress != "" {
		if out.AuxiliaryListenerAddress, err = ma.NewMultiaddr(c.AuxiliaryListenerAddress); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if out.Network, err = types.ParseNetwork(c.Network); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, s := range c.LivenessCIDRAllowlist {
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		out.LivenessCIDRAllowlist = append(out.LivenessCIDRAllowlist, ipnet)
	}
	return out, nil
}
