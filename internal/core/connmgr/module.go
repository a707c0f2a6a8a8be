package connmgr

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/muxer/yamux"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 连接管理器依赖
type ModuleInput struct {
	fx.In

	LC         fx.Lifecycle
	UnifiedCfg *config.Config `optional:"true"`

	Identity      *identity.Identity
	Transport     interfaces.Transport
	SecureChannel interfaces.SecureChannel
	Directory     interfaces.PeerDirectory
	Registry      *protocol.Registry

	// Registerer 指标注册器（可选，缺省时不注册指标）
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput 连接管理器输出
type ModuleOutput struct {
	fx.Out

	Manager   *Manager
	Requester *Requester
	Events    *eventbus.Broadcaster[Event]
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideManager 构建连接管理器并挂载到生命周期
//
// OnStart 在后台运行 Run 并等待主监听器绑定完成，绑定失败时启动失败。
// OnStop 取消 Run 并等待其退出。
func ProvideManager(input ModuleInput) (ModuleOutput, error) {
	cfg, err := ConfigFromUnified(input.UnifiedCfg)
	if err != nil {
		return ModuleOutput{}, err
	}

	backoffCfg := config.DefaultConnManagerConfig().Backoff
	yamuxCfg := yamux.DefaultYamuxConfig()
	if input.UnifiedCfg != nil {
		backoffCfg = input.UnifiedCfg.ConnMgr.Backoff
		yamuxCfg = yamux.FromConfig(input.UnifiedCfg.Transport.Yamux)
	}
	backoff, err := BackoffFromConfig(backoffCfg)
	if err != nil {
		return ModuleOutput{}, err
	}

	events := eventbus.New[Event](eventbus.WithName("connmgr"))
	requests := make(chan Request, RequestChannelSize)

	mgr, err := New(cfg, input.Transport, input.SecureChannel, backoff, requests,
		input.Identity, input.Directory, events,
		WithRegisterer(input.Registerer),
		WithYamuxConfig(yamuxCfg),
	)
	if err != nil {
		return ModuleOutput{}, err
	}
	mgr.AddProtocols(input.Registry)
	requester := NewRequester(requests, events, mgr.Complete())

	var (
		cancel context.CancelFunc
		runErr = make(chan error, 1)
	)
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			go func() {
				runErr <- mgr.Run(runCtx)
			}()

			ready := make(chan ListenerInfo, 1)
			go func() {
				info, err := requester.WaitUntilListening(runCtx)
				if err == nil {
					ready <- info
				}
			}()

			select {
			case <-ready:
				return nil
			case err := <-runErr:
				cancel()
				if err == nil {
					err = ErrManagerShutdown
				}
				return fmt.Errorf("start connection manager: %w", err)
			case <-ctx.Done():
				cancel()
				return ctx.Err()
			}
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			select {
			case <-mgr.Complete():
			case <-ctx.Done():
				return ctx.Err()
			}
			return events.Close()
		},
	})

	return ModuleOutput{Manager: mgr, Requester: requester, Events: events}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("connmgr",
		fx.Provide(ProvideManager),
	)
}
