package config

import (
	"errors"
	"time"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// EnableTCP 启用 TCP 传输
	EnableTCP bool `json:"enable_tcp"`

	// EnableQUIC 启用 QUIC 传输
	EnableQUIC bool `json:"enable_quic"`

	// TCPKeepAlive TCP keepalive 周期（0 使用系统默认）
	TCPKeepAlive Duration `json:"tcp_keep_alive,omitempty"`

	// QUICMaxIdleTimeout QUIC 空闲超时
	QUICMaxIdleTimeout Duration `json:"quic_max_idle_timeout"`

	// Yamux 子流多路复用配置
	Yamux YamuxConfig `json:"yamux"`
}

// YamuxConfig yamux 配置
type YamuxConfig struct {
	// AcceptBacklog 未被接收的入站子流上限
	AcceptBacklog int `json:"accept_backlog"`

	// KeepAliveInterval 心跳间隔（0 禁用）
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxStreamWindowSize 单流接收窗口
	MaxStreamWindowSize uint32 `json:"max_stream_window_size"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		EnableTCP:          true,
		EnableQUIC:         false,
		TCPKeepAlive:       Duration(15 * time.Second),
		QUICMaxIdleTimeout: Duration(30 * time.Second),
		Yamux: YamuxConfig{
			AcceptBacklog:       256,
			KeepAliveInterval:   Duration(30 * time.Second),
			MaxStreamWindowSize: 256 * 1024,
		},
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableQUIC {
		return errors.New("at least one transport must be enabled")
	}
	if c.TCPKeepAlive < 0 || c.QUICMaxIdleTimeout < 0 {
		return errors.New("transport timeouts must not be negative")
	}
	if c.Yamux.AcceptBacklog < 1 {
		return errors.New("yamux accept_backlog must be at least 1")
	}
	// yamux 要求窗口不小于初始值 256KiB
	if c.Yamux.MaxStreamWindowSize < 256*1024 {
		return errors.New("yamux max_stream_window_size must be at least 262144")
	}
	return nil
}
