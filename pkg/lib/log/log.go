// Package log 提供 comms 统一日志入口
//
// 基于标准库 log/slog 封装。各组件通过 Logger(component) 获取懒加载 logger，
// 每次调用都从 slog.Default() 取当前 handler，因此进程启动后安装的
// handler（见 internal/util/logger）对已经声明的包级 logger 同样生效。
//
// 使用方式：
//
//	var logger = log.Logger("core/connmgr")
//	logger.Debug("拨号开始", "peer", nodeID.ShortString())
package log

import (
	"context"
	"log/slog"
)

// ComponentKey 组件属性名
//
// internal/util/logger 依据该属性实现按组件的日志级别。
const ComponentKey = "component"

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

func (l *LazyLogger) logger() *slog.Logger {
	return slog.Default().With(ComponentKey, l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.logger().Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.logger().Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.logger().Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.logger().Error(msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger().DebugContext(ctx, msg, args...)
}

// Enabled 判断当前 handler 是否输出指定级别
//
// 用于跳过构造代价较高的日志参数。
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return l.logger().Enabled(context.Background(), level)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.logger().With(args...)
}
