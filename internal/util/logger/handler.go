package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/dep2p/go-comms/pkg/lib/log"
)

// dynamicWriter 动态查找全局输出目标
type dynamicWriter struct {
	mu  sync.RWMutex
	out io.Writer
}

func (w *dynamicWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	out := w.out
	w.mu.RUnlock()
	return out.Write(p)
}

func (w *dynamicWriter) set(out io.Writer) {
	w.mu.Lock()
	w.out = out
	w.mu.Unlock()
}

// componentHandler 按组件过滤级别的 slog.Handler
//
// 组件名来自 log.ComponentKey 属性，由 LazyLogger 通过 With 注入。
type componentHandler struct {
	cfg       *Config
	component string
	level     slog.Level
	inner     slog.Handler
}

// newHandler 创建根 Handler
func newHandler(cfg Config, w io.Writer) *componentHandler {
	opts := &slog.HandlerOptions{
		// 级别由 componentHandler 判断，内部 handler 全部放行
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	var inner slog.Handler
	if cfg.Format == FormatJSON {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	return &componentHandler{
		cfg:   &cfg,
		level: cfg.DefaultLevel,
		inner: inner,
	}
}

// Enabled 检查是否启用指定级别
func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 处理日志记录
func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs 添加属性，遇到组件属性时重新计算级别
func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &componentHandler{
		cfg:       h.cfg,
		component: h.component,
		level:     h.level,
		inner:     h.inner.WithAttrs(attrs),
	}
	for _, a := range attrs {
		if a.Key == log.ComponentKey {
			next.component = a.Value.String()
			next.level = h.cfg.LevelFor(next.component)
		}
	}
	return next
}

// WithGroup 添加组
func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{
		cfg:       h.cfg,
		component: h.component,
		level:     h.level,
		inner:     h.inner.WithGroup(name),
	}
}
