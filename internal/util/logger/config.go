// Package logger 安装 comms 进程级日志 handler
//
// 支持通过环境变量配置日志级别：
//   - COMMS_LOG_LEVEL: 设置日志级别，支持按组件配置
//     格式: 组件=级别,组件=级别,默认级别
//     示例: core/connmgr=debug,core/noise=warn,info
//   - COMMS_LOG_FORMAT: 日志格式 (text 或 json)
//
// 组件名匹配采用前缀规则，"core" 会同时作用于 "core/connmgr" 与 "core/peerstore"，
// 最长前缀优先。
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// 环境变量名
const (
	EnvLogLevel  = "COMMS_LOG_LEVEL"
	EnvLogFormat = "COMMS_LOG_FORMAT"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat
}

// DefaultConfig 返回默认配置（info 级别，文本格式）
func DefaultConfig() Config {
	return Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}
}

// LevelFor 获取指定组件的日志级别
func (c Config) LevelFor(component string) slog.Level {
	best := -1
	level := c.DefaultLevel
	for prefix, l := range c.ComponentLevels {
		if !matchComponent(component, prefix) {
			continue
		}
		if len(prefix) > best {
			best = len(prefix)
			level = l
		}
	}
	return level
}

// matchComponent 前缀匹配，只在路径分隔处截断
func matchComponent(component, prefix string) bool {
	if component == prefix {
		return true
	}
	return strings.HasPrefix(component, prefix+"/")
}

// ConfigFromEnv 从环境变量解析配置
//
// 未设置的项沿用 base 中的值。
func ConfigFromEnv(base Config) Config {
	cfg := base
	if cfg.ComponentLevels == nil {
		cfg.ComponentLevels = make(map[string]slog.Level)
	}
	if levelStr := os.Getenv(EnvLogLevel); levelStr != "" {
		ParseLevelSpec(&cfg, levelStr)
	}
	if formatStr := os.Getenv(EnvLogFormat); formatStr != "" {
		cfg.Format = ParseFormat(formatStr)
	}
	return cfg
}

// ParseFormat 解析日志格式名
func ParseFormat(name string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

// ParseLevelSpec 解析日志级别配置字符串
// 格式: component=level,component=level,defaultLevel
func ParseLevelSpec(cfg *Config, spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if component, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(strings.TrimSpace(levelName)); ok {
				cfg.ComponentLevels[strings.TrimSpace(component)] = level
			}
			continue
		}

		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
