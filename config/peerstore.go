package config

import "errors"

// PeerstoreConfig 节点目录配置
type PeerstoreConfig struct {
	// Backend 存储后端：memory 或 badger
	Backend string `json:"backend"`

	// Path badger 数据目录（Backend=badger 时必填）
	Path string `json:"path,omitempty"`

	// CacheSize badger 后端前置 LRU 缓存的条目数
	CacheSize int `json:"cache_size"`
}

// DefaultPeerstoreConfig 返回默认节点目录配置
func DefaultPeerstoreConfig() PeerstoreConfig {
	return PeerstoreConfig{
		Backend:   "memory",
		CacheSize: 1024,
	}
}

// Validate 验证节点目录配置
func (c PeerstoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "badger":
		if c.Path == "" {
			return errors.New("peerstore path is required for badger backend")
		}
	default:
		return errors.New("invalid peerstore backend: must be memory or badger")
	}
	if c.CacheSize < 1 {
		return errors.New("peerstore cache_size must be at least 1")
	}
	return nil
}

// LogConfig 日志配置
//
// 环境变量 COMMS_LOG_LEVEL / COMMS_LOG_FORMAT 优先于此处设置。
type LogConfig struct {
	// Level 级别规格，例如 "core/connmgr=debug,info"
	Level string `json:"level"`

	// Format text 或 json
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Format {
	case "", "text", "json":
		return nil
	default:
		return errors.New("invalid log format: must be text or json")
	}
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled"`

	// ListenAddress 指标 HTTP 服务地址（空表示不启动）
	ListenAddress string `json:"listen_address,omitempty"`
}
