package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dep2p/go-comms/pkg/lib/log"
)

var output = &dynamicWriter{out: os.Stderr}

// Install 根据配置构建 handler 并设为进程默认 logger
//
// 环境变量中的设置覆盖 cfg。返回安装后的 logger。
func Install(cfg Config) *slog.Logger {
	cfg = ConfigFromEnv(cfg)
	l := slog.New(newHandler(cfg, output))
	log.SetDefault(l)
	return l
}

// SetOutput 设置全局日志输出目标
//
// 已安装的 handler 立即生效，无需重新 Install。
func SetOutput(w io.Writer) {
	output.set(w)
}

// Discard 返回一个丢弃所有日志的 Logger（用于测试）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
