package config

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile 密钥文件路径
	// 为空时在内存中生成临时密钥
	KeyFile string `json:"key_file"`

	// AutoGenerate 密钥文件不存在时是否自动生成并写入
	AutoGenerate bool `json:"auto_generate"`

	// PublicAddresses 对外公布的地址（协议识别阶段发送给对端）
	PublicAddresses []string `json:"public_addresses,omitempty"`

	// Role 节点角色：node（基础节点）或 client（钱包等轻客户端）
	Role string `json:"role"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyFile:      "",
		AutoGenerate: true,
		Role:         "node",
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	switch c.Role {
	case "node", "client":
	default:
		return errors.New("invalid role: must be node or client")
	}
	for _, a := range c.PublicAddresses {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return fmt.Errorf("invalid public address %q: %w", a, err)
		}
	}
	return nil
}
