package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-comms/pkg/lib/log"
)

func TestInstall_ComponentLevels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		SetOutput(os.Stderr)
	})

	buf := &bytes.Buffer{}
	SetOutput(buf)

	cfg := DefaultConfig()
	cfg.DefaultLevel = slog.LevelWarn
	cfg.ComponentLevels["core"] = slog.LevelInfo
	cfg.ComponentLevels["core/connmgr"] = slog.LevelDebug
	Install(cfg)

	log.Logger("core/connmgr").Debug("拨号开始", "peer", "abc")
	log.Logger("core/peerstore").Debug("被过滤")
	log.Logger("core/peerstore").Info("已写入")
	log.Logger("cmd").Info("被过滤2")

	out := buf.String()
	assert.Contains(t, out, "拨号开始")
	assert.Contains(t, out, "peer=abc")
	assert.Contains(t, out, "component=core/connmgr")
	assert.Contains(t, out, "已写入")
	assert.NotContains(t, out, "被过滤")
}

func TestParseLevelSpec(t *testing.T) {
	cfg := DefaultConfig()
	ParseLevelSpec(&cfg, "core/connmgr=debug, core/noise=warn ,error,bogus=loud")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("core/connmgr"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelFor("core/noise"))
	assert.Equal(t, slog.LevelError, cfg.LevelFor("core/noisex"))
	_, ok := cfg.ComponentLevels["bogus"]
	assert.False(t, ok)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "JSON")

	cfg := ConfigFromEnv(DefaultConfig())
	assert.Equal(t, slog.LevelDebug, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
}
