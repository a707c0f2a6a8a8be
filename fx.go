package comms

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/peerstore"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/internal/core/security/noise"
	"github.com/dep2p/go-comms/internal/core/transport"
	"github.com/dep2p/go-comms/internal/debug/introspect"
	logcfg "github.com/dep2p/go-comms/internal/util/logger"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置、身份
//  2. 传输、安全通道、节点目录、协议注册表
//  3. 连接管理器
//  4. 指标与诊断服务（按配置）
//  5. 用户扩展与 Node 组件注入
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 1. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg.config),
		identity.Module(),
		transport.Module(),
		noise.Module(),
		peerstore.Module(),
		protocol.Module(),
		connmgr.Module(),
	}

	if cfg.privateKey != nil {
		id, err := injectedIdentity(cfg)
		if err != nil {
			return nil, err
		}
		modules = append(modules, fx.Provide(fx.Annotate(
			func() *identity.Identity { return id },
			fx.ResultTags(`name:"injected_identity"`),
		)))
	}

	for _, r := range cfg.protocols {
		modules = append(modules, fx.Provide(protocol.AsRegistration(r.ID, r.Handler)))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 指标与诊断服务（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.config.Metrics.Enabled {
		reg := cfg.registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		modules = append(modules, fx.Provide(
			func() (prometheus.Registerer, prometheus.Gatherer) { return reg, reg },
		))
	}
	if cfg.config.Metrics.ListenAddress != "" {
		modules = append(modules, introspect.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 用户扩展
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, cfg.userFxOptions...)

	// ════════════════════════════════════════════════════════════════════════
	// 4. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 5. Fx 日志
	// ════════════════════════════════════════════════════════════════════════
	verbose := cfg.verbose
	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		if verbose {
			if l, err := zap.NewDevelopment(); err == nil {
				return &fxevent.ZapLogger{Logger: l}
			}
		}
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	return fx.New(modules...), nil
}

// injectedIdentity 由注入的私钥构建身份，公布地址仍取自配置
func injectedIdentity(cfg *nodeConfig) (*identity.Identity, error) {
	id, err := identity.New(cfg.privateKey, identity.FeaturesForRole(cfg.config.Identity.Role))
	if err != nil {
		return nil, err
	}
	addrs := make([]ma.Multiaddr, 0, len(cfg.config.Identity.PublicAddresses))
	for _, s := range cfg.config.Identity.PublicAddresses {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid public address %q: %w", s, err)
		}
		addrs = append(addrs, a)
	}
	id.SetPublicAddresses(addrs)
	return id, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Identity  *identity.Identity
	Requester *connmgr.Requester
	Directory interfaces.PeerDirectory

	Introspect *introspect.Server `optional:"true"`
}

func injectNodeComponents(node *Node) any {
	return func(p nodeInjectParams) {
		node.identity = p.Identity
		node.requester = p.Requester
		node.directory = p.Directory
		node.introspect = p.Introspect
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 日志
// ════════════════════════════════════════════════════════════════════════════

// installLogging 按统一配置安装进程日志 handler，环境变量优先
func installLogging(cfg config.LogConfig) {
	lc := logcfg.DefaultConfig()
	logcfg.ParseLevelSpec(&lc, cfg.Level)
	lc.Format = logcfg.ParseFormat(cfg.Format)
	logcfg.Install(lc)
}
