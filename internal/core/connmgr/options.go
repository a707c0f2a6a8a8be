package connmgr

import (
	"time"

	"github.com/benbjohnson/clock"
	hyamux "github.com/hashicorp/yamux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-comms/internal/core/muxer/yamux"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/internal/core/transport/tcp"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// Option 管理器选项
type Option func(*options)

type options struct {
	clock              clock.Clock
	metrics            *Metrics
	registerer         prometheus.Registerer
	selector           AddressSelector
	yamuxCfg           *hyamux.Config
	auxTransport       interfaces.Transport
	negotiationTimeout time.Duration
}

func defaultOptions() options {
	return options{
		clock:              clock.New(),
		selector:           RecentSuccessSelector{},
		yamuxCfg:           yamux.DefaultYamuxConfig(),
		negotiationTimeout: protocol.DefaultNegotiationTimeout,
	}
}

// WithClock 设置时钟，测试中用于控制退避等待
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMetrics 使用已创建的指标
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRegisterer 创建指标并注册到 registerer
//
// 同时设置 WithMetrics 时以 WithMetrics 为准。
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithAddressSelector 设置拨号地址排序策略
func WithAddressSelector(s AddressSelector) Option {
	return func(o *options) {
		o.selector = s
	}
}

// WithYamuxConfig 设置 yamux 参数
func WithYamuxConfig(cfg *hyamux.Config) Option {
	return func(o *options) {
		o.yamuxCfg = cfg
	}
}

// WithAuxTransport 设置辅助监听器使用的传输，默认 TCP
func WithAuxTransport(t interfaces.Transport) Option {
	return func(o *options) {
		o.auxTransport = t
	}
}

// WithNegotiationTimeout 设置子流协议协商超时
func WithNegotiationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.negotiationTimeout = d
	}
}

func (o *options) resolve() error {
	if o.metrics == nil {
		m, err := NewMetrics(o.registerer)
		if err != nil {
			return err
		}
		o.metrics = m
	}
	if o.auxTransport == nil {
		o.auxTransport = tcp.New(0)
	}
	return nil
}
