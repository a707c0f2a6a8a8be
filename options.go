package comms

import (
	"crypto/ed25519"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// Option 节点配置选项
type Option func(*nodeConfig) error

// nodeConfig 节点内部配置
type nodeConfig struct {
	// config 统一配置，选项按顺序覆盖其中字段
	config *config.Config

	// privateKey 直接注入的私钥，优先于密钥文件
	privateKey ed25519.PrivateKey

	// registry 指标注册表
	registry *prometheus.Registry

	protocols     []protocol.Registration
	verbose       bool
	userFxOptions []fx.Option
}

func newNodeConfig() *nodeConfig {
	return &nodeConfig{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整的统一配置
//
// 应放在其它选项之前，之后的选项在该配置上继续覆盖。
func WithConfig(cfg *config.Config) Option {
	return func(c *nodeConfig) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		c.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载统一配置
func WithConfigFile(path string) Option {
	return func(c *nodeConfig) error {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// WithPreset 应用预设（basenode / wallet / localtest）
func WithPreset(name string) Option {
	return func(c *nodeConfig) error {
		return config.ApplyPreset(c.config, name)
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份
// ════════════════════════════════════════════════════════════════════════════

// WithIdentityFile 从密钥文件加载身份，文件不存在时生成并写入
func WithIdentityFile(path string) Option {
	return func(c *nodeConfig) error {
		c.config.Identity.KeyFile = path
		c.config.Identity.AutoGenerate = true
		return nil
	}
}

// WithPrivateKey 直接使用给定私钥
func WithPrivateKey(key ed25519.PrivateKey) Option {
	return func(c *nodeConfig) error {
		if len(key) != ed25519.PrivateKeySize {
			return fmt.Errorf("invalid private key length %d", len(key))
		}
		c.privateKey = key
		return nil
	}
}

// WithPublicAddresses 设置协议识别阶段公布的地址
//
// 未设置时使用主监听器绑定后的地址。
func WithPublicAddresses(addrs ...string) Option {
	return func(c *nodeConfig) error {
		for _, a := range addrs {
			if _, err := ma.NewMultiaddr(a); err != nil {
				return fmt.Errorf("invalid public address %q: %w", a, err)
			}
		}
		c.config.Identity.PublicAddresses = append([]string(nil), addrs...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接管理
// ════════════════════════════════════════════════════════════════════════════

// WithListenAddress 设置主监听地址
func WithListenAddress(addr string) Option {
	return func(c *nodeConfig) error {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		c.config.ConnMgr.ListenerAddress = addr
		return nil
	}
}

// WithAuxiliaryListenAddress 设置辅助 TCP 监听地址
//
// required 为 true 时辅助监听器绑定失败会导致启动失败。
func WithAuxiliaryListenAddress(addr string, required bool) Option {
	return func(c *nodeConfig) error {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid auxiliary listen address %q: %w", addr, err)
		}
		c.config.ConnMgr.AuxiliaryListenerAddress = addr
		c.config.ConnMgr.AuxiliaryListenerRequired = required
		return nil
	}
}

// WithNetwork 设置网络（mainnet / localnet / ridcully / stibbons / weatherwax）
func WithNetwork(name string) Option {
	return func(c *nodeConfig) error {
		n, err := types.ParseNetwork(name)
		if err != nil {
			return err
		}
		c.config.ConnMgr.Network = n.String()
		return nil
	}
}

// WithAllowTestAddresses 是否允许回环与私有地址（仅测试环境）
func WithAllowTestAddresses(allow bool) Option {
	return func(c *nodeConfig) error {
		c.config.ConnMgr.AllowTestAddresses = allow
		return nil
	}
}

// WithUserAgent 设置协议识别阶段公布的客户端标识
func WithUserAgent(ua string) Option {
	return func(c *nodeConfig) error {
		c.config.ConnMgr.UserAgent = ua
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协议与扩展
// ════════════════════════════════════════════════════════════════════════════

// WithProtocol 注册入站子流的协议处理器
func WithProtocol(id types.ProtocolID, h interfaces.ProtocolHandler) Option {
	return func(c *nodeConfig) error {
		if !id.IsValid() {
			return fmt.Errorf("invalid protocol id %q", id)
		}
		if h == nil {
			return fmt.Errorf("nil handler for protocol %q", id)
		}
		c.protocols = append(c.protocols, protocol.Registration{ID: id, Handler: h})
		return nil
	}
}

// WithMetricsRegistry 将指标注册到给定注册表
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *nodeConfig) error {
		c.registry = reg
		c.config.Metrics.Enabled = true
		return nil
	}
}

// WithDiagnosticsAddress 在给定地址提供 /metrics 与诊断端点
func WithDiagnosticsAddress(addr string) Option {
	return func(c *nodeConfig) error {
		c.config.Metrics.Enabled = true
		c.config.Metrics.ListenAddress = addr
		return nil
	}
}

// WithVerbose 输出 fx 组装日志
func WithVerbose(verbose bool) Option {
	return func(c *nodeConfig) error {
		c.verbose = verbose
		return nil
	}
}

// WithFxOptions 追加自定义 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(c *nodeConfig) error {
		c.userFxOptions = append(c.userFxOptions, opts...)
		return nil
	}
}
