// Package yamux 提供基于 hashicorp/yamux 的子流多路复用
//
// 入站连接作为 yamux 服务端，出站连接作为客户端，
// 每条子流在打开后再通过 multistream-select 协商协议。
package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-comms/config"
)

// DefaultYamuxConfig 返回默认的 yamux 配置
func DefaultYamuxConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}

// FromConfig 将配置文件中的 yamux 段转换为 yamux.Config
func FromConfig(cfg config.YamuxConfig) *yamux.Config {
	yc := DefaultYamuxConfig()
	if cfg.AcceptBacklog > 0 {
		yc.AcceptBacklog = cfg.AcceptBacklog
	}
	if cfg.MaxStreamWindowSize > 0 {
		yc.MaxStreamWindowSize = cfg.MaxStreamWindowSize
	}
	if cfg.KeepAliveInterval > 0 {
		yc.KeepAliveInterval = cfg.KeepAliveInterval.Duration()
	} else {
		yc.EnableKeepAlive = false
	}
	return yc
}
