package transport

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/transport/quic"
	"github.com/dep2p/go-comms/internal/core/transport/tcp"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// Params 传输模块依赖
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Output 传输模块输出
type Output struct {
	fx.Out

	Transport interfaces.Transport
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideTransport),
	)
}

// ProvideTransport 按配置组合传输
func ProvideTransport(p Params) (Output, error) {
	cfg := config.DefaultTransportConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Transport
	}

	m, err := FromConfig(cfg)
	if err != nil {
		return Output{}, err
	}
	return Output{Transport: m}, nil
}

// FromConfig 按配置创建多传输路由
func FromConfig(cfg config.TransportConfig) (*Multi, error) {
	var ts []interfaces.Transport
	if cfg.EnableTCP {
		ts = append(ts, tcp.New(cfg.TCPKeepAlive.Duration()))
	}
	if cfg.EnableQUIC {
		qt, err := quic.New(cfg.QUICMaxIdleTimeout.Duration())
		if err != nil {
			return nil, err
		}
		ts = append(ts, qt)
	}
	if len(ts) == 0 {
		return nil, ErrNoTransport
	}

	logger.Debug("传输已创建", "tcp", cfg.EnableTCP, "quic", cfg.EnableQUIC)
	return NewMulti(ts...), nil
}
