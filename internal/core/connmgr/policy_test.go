package connmgr

import (
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              退避策略
// ============================================================================

// TestExponentialBackoff 测试指数退避曲线与上限
func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, b.NextDelay(3))
	assert.Equal(t, 800*time.Millisecond, b.NextDelay(4))
	assert.Equal(t, time.Second, b.NextDelay(5))
	assert.Equal(t, time.Second, b.NextDelay(500))
	assert.Equal(t, time.Duration(0), b.NextDelay(0))

	t.Log("✅ 指数退避测试通过")
}

// TestExponentialBackoff_Jitter 测试抖动范围
func TestExponentialBackoff_Jitter(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 10 * time.Second, Jitter: 50 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := b.NextDelay(1)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+50*time.Millisecond)
	}

	t.Log("✅ 抖动范围测试通过")
}

// TestConstantAndNoBackoff 测试固定退避与无退避
func TestConstantAndNoBackoff(t *testing.T) {
	c := ConstantBackoff{Delay: 300 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, c.NextDelay(1))
	assert.Equal(t, 300*time.Millisecond, c.NextDelay(9))
	assert.Equal(t, time.Duration(0), NoBackoff{}.NextDelay(3))

	t.Log("✅ 固定退避测试通过")
}

// TestBackoffFromConfig 测试按配置创建退避策略
func TestBackoffFromConfig(t *testing.T) {
	b, err := BackoffFromConfig(config.BackoffConfig{
		Kind: "exponential",
		Base: config.Duration(time.Second),
		Max:  config.Duration(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, ExponentialBackoff{Base: time.Second, Max: time.Minute}, b)

	b, err = BackoffFromConfig(config.BackoffConfig{Kind: "constant", Base: config.Duration(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, ConstantBackoff{Delay: time.Second}, b)

	b, err = BackoffFromConfig(config.BackoffConfig{Kind: "none"})
	require.NoError(t, err)
	assert.Equal(t, NoBackoff{}, b)

	_, err = BackoffFromConfig(config.BackoffConfig{Kind: "fibonacci"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Log("✅ 退避配置测试通过")
}

// ============================================================================
//                              地址排序
// ============================================================================

// TestRecentSuccessSelector 测试默认地址顺序
func TestRecentSuccessSelector(t *testing.T) {
	now := time.Now()
	recent := ma.StringCast("/ip4/1.1.1.1/tcp/1")
	older := ma.StringCast("/ip4/2.2.2.2/tcp/1")
	clean := ma.StringCast("/ip4/4.4.4.4/tcp/1")
	cleanLex := ma.StringCast("/ip4/3.3.3.3/tcp/1")
	failing := ma.StringCast("/ip4/0.0.0.1/tcp/1")

	peer := &types.Peer{Addresses: []*types.PeerAddress{
		{Addr: failing, FailedAttempts: 4},
		{Addr: clean},
		{Addr: older, LastSuccess: now.Add(-time.Hour)},
		{Addr: cleanLex},
		{Addr: recent, LastSuccess: now},
	}}

	got := RecentSuccessSelector{}.Select(peer)
	assert.Equal(t, []ma.Multiaddr{recent, older, cleanLex, clean, failing}, got)

	// 确定性
	assert.Equal(t, got, RecentSuccessSelector{}.Select(peer))

	t.Log("✅ 地址排序测试通过")
}

// ============================================================================
//                              地址过滤
// ============================================================================

// TestIsTestAddr 测试测试地址识别
func TestIsTestAddr(t *testing.T) {
	cases := map[string]bool{
		"/ip4/127.0.0.1/tcp/1":     true,
		"/ip4/10.1.2.3/tcp/1":      true,
		"/ip4/192.168.1.1/tcp/1":   true,
		"/ip4/169.254.0.1/tcp/1":   true,
		"/ip4/0.0.0.0/tcp/1":       true,
		"/ip6/::1/tcp/1":           true,
		"/ip4/8.8.8.8/tcp/1":       false,
		"/ip6/2001:db8::1/tcp/1":   false,
		"/dns4/example.com/tcp/80": false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isTestAddr(ma.StringCast(addr)), addr)
	}

	t.Log("✅ 测试地址识别通过")
}

// TestCIDRFilter 测试 CIDR 白名单
func TestCIDRFilter(t *testing.T) {
	_, loopback, _ := net.ParseCIDR("127.0.0.1/32")
	f := newCIDRFilter([]*net.IPNet{loopback})

	assert.True(t, f.AllowIP(net.ParseIP("127.0.0.1")))
	assert.False(t, f.AllowIP(net.ParseIP("127.0.0.2")))
	assert.False(t, f.AllowIP(nil))
	assert.False(t, newCIDRFilter(nil).AllowIP(net.ParseIP("127.0.0.1")))

	t.Log("✅ CIDR 白名单测试通过")
}

// TestRemoteInfo 测试对端地址解析
func TestRemoteInfo(t *testing.T) {
	addr, ip := remoteInfo(&net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 9000})
	require.NotNil(t, addr)
	assert.Equal(t, "/ip4/203.0.113.7/tcp/9000", addr.String())
	assert.True(t, ip.Equal(net.ParseIP("203.0.113.7")))

	addr, ip = remoteInfo(nil)
	assert.Nil(t, addr)
	assert.Nil(t, ip)

	t.Log("✅ 对端地址解析测试通过")
}

// ============================================================================
//                              配置
// ============================================================================

// TestConfig_Validate 测试配置校验
func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ListenerAddress = nil
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.MaxDialAttempts = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.AuxiliaryListenerAddress = ma.StringCast("/ip4/0.0.0.0/udp/1/quic-v1")
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	t.Log("✅ 配置校验测试通过")
}

// TestConfigFromUnified 测试从统一配置转换
func TestConfigFromUnified(t *testing.T) {
	unified := config.NewConfig()
	unified.ConnMgr.ListenerAddress = "/ip4/0.0.0.0/tcp/9999"
	unified.ConnMgr.AuxiliaryListenerAddress = "/ip4/0.0.0.0/tcp/9998"
	unified.ConnMgr.Network = "localnet"
	unified.ConnMgr.LivenessCIDRAllowlist = []string{"10.0.0.0/8"}

	cfg, err := ConfigFromUnified(unified)
	require.NoError(t, err)
	assert.Equal(t, "/ip4/0.0.0.0/tcp/9999", cfg.ListenerAddress.String())
	assert.Equal(t, "/ip4/0.0.0.0/tcp/9998", cfg.AuxiliaryListenerAddress.String())
	assert.Equal(t, types.NetworkLocalNet, cfg.Network)
	require.Len(t, cfg.LivenessCIDRAllowlist, 1)
	assert.Equal(t, "10.0.0.0/8", cfg.LivenessCIDRAllowlist[0].String())
	require.NoError(t, cfg.Validate())

	unified.ConnMgr.Network = "nowhere"
	_, err = ConfigFromUnified(unified)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Log("✅ 统一配置转换测试通过")
}
