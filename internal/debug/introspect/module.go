package introspect

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// Module 返回诊断服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 诊断服务依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config           `optional:"true"`
	Identity   *identity.Identity       `optional:"true"`
	Requester  *connmgr.Requester       `optional:"true"`
	Directory  interfaces.PeerDirectory `optional:"true"`
	Gatherer   prometheus.Gatherer      `optional:"true"`
}

// Output 诊断服务输出
type Output struct {
	fx.Out

	Server *Server
}

// ConfigFromUnified 从统一配置创建诊断服务配置
//
// 未配置 metrics.listen_address 时返回 nil，表示禁用。
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || cfg.Metrics.ListenAddress == "" {
		return nil
	}
	return &Config{Addr: cfg.Metrics.ListenAddress}
}

// NewFromParams 从参数创建诊断服务，禁用时 Server 为 nil
func NewFromParams(p Params) Output {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if cfg == nil {
		return Output{}
	}

	cfg.Identity = p.Identity
	cfg.Requester = p.Requester
	cfg.Directory = p.Directory
	cfg.Gatherer = p.Gatherer
	return Output{Server: New(*cfg)}
}

func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
