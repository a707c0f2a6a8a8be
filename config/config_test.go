package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cm := cfg.ConnMgr
	assert.Equal(t, "/ip4/0.0.0.0/tcp/7898", cm.ListenerAddress)
	assert.Equal(t, 3, cm.MaxDialAttempts)
	assert.Equal(t, 20, cm.MaxSimultaneousInboundConnects)
	assert.False(t, cm.AllowTestAddresses)
	assert.Equal(t, 7*time.Second, cm.TimeToFirstByte.Duration())
	assert.Equal(t, 0, cm.LivenessMaxSessions)
	assert.Equal(t, []string{"127.0.0.1/32"}, cm.LivenessCIDRAllowlist)
	assert.Empty(t, cm.AuxiliaryListenerAddress)

	t.Log("✅ NewConfig 测试通过")
}

// TestConnManagerConfig_Validate 测试连接管理配置校验
func TestConnManagerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ConnManagerConfig)
	}{
		{"bad listener", func(c *ConnManagerConfig) { c.ListenerAddress = "tcp://nope" }},
		{"udp aux", func(c *ConnManagerConfig) { c.AuxiliaryListenerAddress = "/ip4/127.0.0.1/udp/1" }},
		{"bad network", func(c *ConnManagerConfig) { c.Network = "discworld" }},
		{"zero attempts", func(c *ConnManagerConfig) { c.MaxDialAttempts = 0 }},
		{"zero inbound", func(c *ConnManagerConfig) { c.MaxSimultaneousInboundConnects = 0 }},
		{"zero ttfb", func(c *ConnManagerConfig) { c.TimeToFirstByte = 0 }},
		{"bad cidr", func(c *ConnManagerConfig) { c.LivenessCIDRAllowlist = []string{"localhost"} }},
		{"bad backoff", func(c *ConnManagerConfig) { c.Backoff.Kind = "fibonacci" }},
		{"max below base", func(c *ConnManagerConfig) { c.Backoff.Max = c.Backoff.Base / 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConnManagerConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

// TestFromJSON 测试 JSON 加载保留默认值
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"conn_mgr": {
			"listener_address": "/ip4/0.0.0.0/tcp/18189",
			"time_to_first_byte": "3s",
			"dial_timeout": 5000000000,
			"network": "stibbons"
		},
		"peerstore": {"backend": "badger", "path": "/tmp/peers"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/ip4/0.0.0.0/tcp/18189", cfg.ConnMgr.ListenerAddress)
	assert.Equal(t, 3*time.Second, cfg.ConnMgr.TimeToFirstByte.Duration())
	assert.Equal(t, 5*time.Second, cfg.ConnMgr.DialTimeout.Duration())
	assert.Equal(t, 3, cfg.ConnMgr.MaxDialAttempts, "未设置的字段保留默认值")
	assert.Equal(t, "badger", cfg.Peerstore.Backend)

	_, err = FromJSON([]byte(`{"conn_mgr": {"time_to_first_byte": "soon"}}`))
	assert.Error(t, err)
}

// TestSaveAndLoad 测试文件读写
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comms.json")

	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, "localtest"))
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.True(t, loaded.ConnMgr.AllowTestAddresses)

	raw, err := cfg.ToJSON()
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "7s", generic["conn_mgr"].(map[string]any)["time_to_first_byte"])
}

// TestApplyPreset 测试预设
func TestApplyPreset(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, "wallet"))
	assert.Equal(t, "client", cfg.Identity.Role)
	require.NoError(t, cfg.Validate())

	assert.Error(t, ApplyPreset(cfg, "mobile"))
	assert.Error(t, ApplyPreset(nil, "wallet"))
}

// TestDuration_Text 测试 Duration 文本解析
func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}
