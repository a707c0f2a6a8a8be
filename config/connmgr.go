package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// 默认值
const (
	DefaultListenerAddress                = "/ip4/0.0.0.0/tcp/7898"
	DefaultMaxDialAttempts                = 3
	DefaultMaxSimultaneousInboundConnects = 20
	DefaultTimeToFirstByte                = 7 * time.Second
	DefaultHandshakeTimeout               = 20 * time.Second
	DefaultDialTimeout                    = 30 * time.Second
	DefaultLivenessMaxSessions            = 0
	DefaultLivenessAllowlistCIDR          = "127.0.0.1/32"
)

// ConnManagerConfig 连接管理器配置
//
// 对应 internal/core/connmgr.Config，通过 connmgr.ConfigFromUnified 转换。
type ConnManagerConfig struct {
	// ListenerAddress 主监听地址
	ListenerAddress string `json:"listener_address"`

	// AuxiliaryListenerAddress 辅助 TCP 监听地址（空表示禁用）
	// 常用于本机钱包连接
	AuxiliaryListenerAddress string `json:"auxiliary_listener_address,omitempty"`

	// AuxiliaryListenerRequired 辅助监听绑定失败时是否终止连接管理器
	// 默认 false：降级为不可用并继续运行
	AuxiliaryListenerRequired bool `json:"auxiliary_listener_required,omitempty"`

	// Network 网络名称（mainnet/localnet/ridcully/stibbons/weatherwax）
	Network string `json:"network"`

	// MaxDialAttempts 单次拨号在所有地址上的最大尝试次数
	MaxDialAttempts int `json:"max_dial_attempts"`

	// MaxSimultaneousInboundConnects 每个监听器同时进行中的入站握手上限
	MaxSimultaneousInboundConnects int `json:"max_simultaneous_inbound_connects"`

	// InboundConnectRate 每秒接受的入站连接数上限（0 表示不限）
	InboundConnectRate float64 `json:"inbound_connect_rate,omitempty"`

	// AllowTestAddresses 是否允许回环、链路本地、私有地址（仅测试环境）
	AllowTestAddresses bool `json:"allow_test_addresses"`

	// TimeToFirstByte 入站连接等待首字节的超时
	TimeToFirstByte Duration `json:"time_to_first_byte"`

	// HandshakeTimeout 首字节之后握手与协议识别的超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// DialTimeout 单次出站尝试（连接+握手+识别）的超时
	DialTimeout Duration `json:"dial_timeout"`

	// Backoff 拨号退避策略
	Backoff BackoffConfig `json:"backoff"`

	// LivenessMaxSessions 并发存活检测会话上限（0 表示禁用）
	LivenessMaxSessions int `json:"liveness_max_sessions"`

	// LivenessCIDRAllowlist 允许存活检测的来源网段
	LivenessCIDRAllowlist []string `json:"liveness_cidr_allowlist"`

	// UserAgent 协议识别阶段公布的客户端标识
	UserAgent string `json:"user_agent,omitempty"`
}

// BackoffConfig 退避策略配置
type BackoffConfig struct {
	// Kind 策略类型：exponential / constant / none
	Kind string `json:"kind"`

	// Base 首次退避时间
	Base Duration `json:"base"`

	// Max 退避上限
	Max Duration `json:"max"`

	// Jitter 随机抖动上限
	Jitter Duration `json:"jitter"`
}

// DefaultConnManagerConfig 返回默认连接管理器配置
func DefaultConnManagerConfig() ConnManagerConfig {
	return ConnManagerConfig{
		ListenerAddress:                DefaultListenerAddress,
		Network:                        types.NetworkMainNet.String(),
		MaxDialAttempts:                DefaultMaxDialAttempts,
		MaxSimultaneousInboundConnects: DefaultMaxSimultaneousInboundConnects,
		AllowTestAddresses:             false,
		TimeToFirstByte:                Duration(DefaultTimeToFirstByte),
		HandshakeTimeout:               Duration(DefaultHandshakeTimeout),
		DialTimeout:                    Duration(DefaultDialTimeout),
		Backoff:                        DefaultBackoffConfig(),
		LivenessMaxSessions:            DefaultLivenessMaxSessions,
		LivenessCIDRAllowlist:          []string{DefaultLivenessAllowlistCIDR},
	}
}

// DefaultBackoffConfig 返回默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Kind:   "exponential",
		Base:   Duration(time.Second),
		Max:    Duration(30 * time.Second),
		Jitter: Duration(500 * time.Millisecond),
	}
}

// Validate 验证连接管理器配置
func (c ConnManagerConfig) Validate() error {
	if _, err := ma.NewMultiaddr(c.ListenerAddress); err != nil {
		return fmt.Errorf("invalid listener_address: %w", err)
	}
	if c.AuxiliaryListenerAddress != "" {
		aux, err := ma.NewMultiaddr(c.AuxiliaryListenerAddress)
		if err != nil {
			return fmt.Errorf("invalid auxiliary_listener_address: %w", err)
		}
		if _, err := aux.ValueForProtocol(ma.P_TCP); err != nil {
			return errors.New("auxiliary_listener_address must be a tcp address")
		}
	}
	if _, err := types.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.MaxDialAttempts < 1 {
		return errors.New("max_dial_attempts must be at least 1")
	}
	if c.MaxSimultaneousInboundConnects < 1 {
		return errors.New("max_simultaneous_inbound_connects must be at least 1")
	}
	if c.InboundConnectRate < 0 {
		return errors.New("inbound_connect_rate must not be negative")
	}
	if c.TimeToFirstByte <= 0 {
		return errors.New("time_to_first_byte must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial_timeout must be positive")
	}
	if c.LivenessMaxSessions < 0 {
		return errors.New("liveness_max_sessions must not be negative")
	}
	for _, cidr := range c.LivenessCIDRAllowlist {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid liveness_cidr_allowlist entry %q: %w", cidr, err)
		}
	}
	return c.Backoff.Validate()
}

// Validate 验证退避配置
func (c BackoffConfig) Validate() error {
	switch c.Kind {
	case "exponential", "constant", "none":
	default:
		return fmt.Errorf("invalid backoff kind %q: must be exponential, constant or none", c.Kind)
	}
	if c.Base < 0 || c.Max < 0 || c.Jitter < 0 {
		return errors.New("backoff durations must not be negative")
	}
	if c.Kind == "exponential" && c.Max < c.Base {
		return errors.New("backoff max must not be less than base")
	}
	return nil
}
