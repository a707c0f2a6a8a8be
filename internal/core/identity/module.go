package identity

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// UnifiedCfg 统一配置（可选，使用默认配置）
	UnifiedCfg *config.Config `optional:"true"`

	// Identity 直接注入的身份（可选，优先于配置）
	Identity *Identity `name:"injected_identity" optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Identity *Identity
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideIdentity 提供本节点身份
//
// 优先级：注入的身份 > 密钥文件 > 临时生成
func ProvideIdentity(input ModuleInput) (ModuleOutput, error) {
	if input.Identity != nil {
		return ModuleOutput{Identity: input.Identity}, nil
	}

	cfg := config.DefaultIdentityConfig()
	if input.UnifiedCfg != nil {
		cfg = input.UnifiedCfg.Identity
	}

	id, err := FromConfig(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Identity: id}, nil
}

// FromConfig 按配置加载或生成身份
func FromConfig(cfg config.IdentityConfig) (*Identity, error) {
	features := FeaturesForRole(cfg.Role)

	var (
		id  *Identity
		err error
	)
	switch {
	case cfg.KeyFile == "":
		id, err = Generate(features)
		if err != nil {
			return nil, err
		}
		logger.Debug("使用临时身份", "nodeID", id.NodeID().ShortString())

	default:
		priv, loadErr := LoadKeyFile(cfg.KeyFile)
		switch {
		case loadErr == nil:
			id, err = New(priv, features)
			if err != nil {
				return nil, err
			}
		case errors.Is(loadErr, ErrKeyNotFound) && cfg.AutoGenerate:
			id, err = Generate(features)
			if err != nil {
				return nil, err
			}
			if err := SaveKeyFile(id.PrivateKey(), cfg.KeyFile); err != nil {
				return nil, fmt.Errorf("保存密钥文件失败: %w", err)
			}
			logger.Info("已生成新身份", "nodeID", id.NodeID().String(), "keyFile", cfg.KeyFile)
		default:
			return nil, fmt.Errorf("加载密钥文件失败: %w", loadErr)
		}
	}

	addrs := make([]ma.Multiaddr, 0, len(cfg.PublicAddresses))
	for _, s := range cfg.PublicAddresses {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid public address %q: %w", s, err)
		}
		addrs = append(addrs, a)
	}
	id.SetPublicAddresses(addrs)

	return id, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
