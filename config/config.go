// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存，以及按场景应用预设。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.ConnMgr.ListenerAddress = "/ip4/0.0.0.0/tcp/18189"
//
//	// 从 JSON 加载（未出现的字段保留默认值）
//	cfg, err := config.LoadFromFile("comms.json")
//
//	// 应用预设
//	err = config.ApplyPreset(cfg, "wallet")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 是 comms 的完整配置结构
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// ConnMgr 连接管理器配置
	ConnMgr ConnManagerConfig `json:"conn_mgr"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Peerstore 节点目录配置
	Peerstore PeerstoreConfig `json:"peerstore"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		ConnMgr:   DefaultConnManagerConfig(),
		Transport: DefaultTransportConfig(),
		Peerstore: DefaultPeerstoreConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.ConnMgr.Validate(); err != nil {
		return fmt.Errorf("conn_mgr: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Peerstore.Validate(); err != nil {
		return fmt.Errorf("peerstore: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 数据创建配置
//
// JSON 中未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile 从文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// SaveToFile 保存配置到文件
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "basenode": 基础节点，公网监听，较高入站并发
//   - "wallet":   钱包客户端，client 角色，辅助本机监听关闭
//   - "localtest": 本机测试，允许回环地址，随机端口，localnet
func ApplyPreset(cfg *Config, name string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch name {
	case "basenode":
		cfg.Identity.Role = "node"
		cfg.ConnMgr.MaxSimultaneousInboundConnects = 50
		cfg.ConnMgr.LivenessMaxSessions = 1
	case "wallet":
		cfg.Identity.Role = "client"
		cfg.ConnMgr.ListenerAddress = "/ip4/0.0.0.0/tcp/0"
		cfg.ConnMgr.AuxiliaryListenerAddress = ""
		cfg.ConnMgr.MaxSimultaneousInboundConnects = 5
	case "localtest":
		cfg.ConnMgr.ListenerAddress = "/ip4/127.0.0.1/tcp/0"
		cfg.ConnMgr.AllowTestAddresses = true
		cfg.ConnMgr.Network = "localnet"
		cfg.Peerstore.Backend = "memory"
	case "":
	default:
		return fmt.Errorf("unknown preset: %s", name)
	}
	return nil
}
