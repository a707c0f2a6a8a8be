package identity

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/types"
)

// TestIdentity_Generate 测试生成身份
func TestIdentity_Generate(t *testing.T) {
	id, err := Generate(types.FeaturesCommunicationNode)
	require.NoError(t, err)

	assert.Len(t, id.PublicKey(), ed25519.PublicKeySize)
	assert.True(t, id.NodeID().MatchesPublicKey(id.PublicKey()))
	assert.Equal(t, types.FeaturesCommunicationNode, id.Features())

	sig := id.Sign([]byte("hello"))
	assert.True(t, ed25519.Verify(id.PublicKey(), []byte("hello"), sig))

	t.Log("✅ 身份生成测试通过")
}

// TestIdentity_New_Invalid 测试非法私钥
func TestIdentity_New_Invalid(t *testing.T) {
	_, err := New(nil, 0)
	assert.ErrorIs(t, err, ErrNilPrivateKey)

	_, err = New(make(ed25519.PrivateKey, 10), 0)
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

// TestIdentity_PublicAddresses 测试公布地址
func TestIdentity_PublicAddresses(t *testing.T) {
	id, err := Generate(0)
	require.NoError(t, err)

	bound := ma.StringCast("/ip4/127.0.0.1/tcp/4001")
	assert.True(t, id.AddPublicAddressIfEmpty(bound))
	assert.False(t, id.AddPublicAddressIfEmpty(ma.StringCast("/ip4/127.0.0.1/tcp/4002")))
	require.Len(t, id.PublicAddresses(), 1)
	assert.True(t, id.PublicAddresses()[0].Equal(bound))

	// 返回副本
	addrs := id.PublicAddresses()
	addrs[0] = nil
	assert.NotNil(t, id.PublicAddresses()[0])
}

// TestKeyFile_RoundTrip 测试密钥文件读写
func TestKeyFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	id, err := Generate(0)
	require.NoError(t, err)
	require.NoError(t, SaveKeyFile(id.PrivateKey(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.True(t, priv.Equal(id.PrivateKey()))

	_, err = LoadKeyFile(filepath.Join(t.TempDir(), "missing.key"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	bad := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("0OIl"), 0o600))
	_, err = LoadKeyFile(bad)
	assert.ErrorIs(t, err, ErrInvalidKeyFile)
}

// TestFromConfig 测试按配置加载身份
func TestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	cfg := config.DefaultIdentityConfig()
	cfg.KeyFile = path
	cfg.Role = "client"
	cfg.PublicAddresses = []string{"/ip4/203.0.113.7/tcp/18189"}

	first, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, types.FeaturesCommunicationClient, first.Features())
	require.Len(t, first.PublicAddresses(), 1)

	// 第二次加载得到同一身份
	second, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID(), second.NodeID())

	// 关闭自动生成时缺失文件报错
	cfg.KeyFile = filepath.Join(t.TempDir(), "absent.key")
	cfg.AutoGenerate = false
	_, err = FromConfig(cfg)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
