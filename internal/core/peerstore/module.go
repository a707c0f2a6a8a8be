package peerstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// defaultGCInterval badger value log 回收间隔
const defaultGCInterval = 10 * time.Minute

// Params 节点目录依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Output 节点目录模块输出
type Output struct {
	fx.Out

	Directory interfaces.PeerDirectory
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("peerstore",
		fx.Provide(ProvideDirectory),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideDirectory 按配置提供节点目录
func ProvideDirectory(p Params) (Output, error) {
	cfg := config.DefaultPeerstoreConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Peerstore
	}

	dir, err := Open(cfg)
	if err != nil {
		return Output{}, err
	}
	return Output{Directory: dir}, nil
}

// Open 按配置打开节点目录
func Open(cfg config.PeerstoreConfig) (interfaces.PeerDirectory, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryDirectory(), nil
	case "badger":
		dir, err := NewBadgerDirectory(BadgerOptions{
			Path:       cfg.Path,
			CacheSize:  cfg.CacheSize,
			GCInterval: defaultGCInterval,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("节点目录已打开", "backend", "badger", "path", cfg.Path)
		return dir, nil
	default:
		return nil, fmt.Errorf("peerstore: unknown backend %q", cfg.Backend)
	}
}

type lifecycleInput struct {
	fx.In

	LC        fx.Lifecycle
	Directory interfaces.PeerDirectory
}

// registerLifecycle 停止时关闭目录
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Directory.Close()
		},
	})
}
