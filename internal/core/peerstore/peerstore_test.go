package peerstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

func newTestPeer(t *testing.T, addrs ...string) *types.Peer {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	mas := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		mas = append(mas, ma.StringCast(a))
	}
	return types.NewPeer(pub, mas, types.FeaturesCommunicationNode)
}

// backends 返回待测的目录实现
func backends(t *testing.T) map[string]interfaces.PeerDirectory {
	t.Helper()
	bd, err := NewBadgerDirectory(BadgerOptions{InMemory: true, CacheSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bd.Close() })

	return map[string]interfaces.PeerDirectory{
		"memory": NewMemoryDirectory(),
		"badger": bd,
	}
}

// ============================================================================
//                              目录行为
// ============================================================================

// TestDirectory_FindUpsert 测试查找与合并
func TestDirectory_FindUpsert(t *testing.T) {
	ctx := context.Background()

	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := newTestPeer(t, "/ip4/1.2.3.4/tcp/18189")

			_, err := dir.Find(ctx, p.NodeID)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, dir.Upsert(ctx, p))

			got, err := dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Equal(t, p.NodeID, got.NodeID)
			assert.True(t, got.PublicKey.Equal(p.PublicKey))
			require.Len(t, got.Addresses, 1)

			// 合并：新增地址与协议，保留旧地址
			update := &types.Peer{
				PublicKey:          p.PublicKey,
				NodeID:             p.NodeID,
				UserAgent:          "comms/1.0",
				SupportedProtocols: []types.ProtocolID{"/comms/messaging/1"},
			}
			update.AddAddress(ma.StringCast("/ip4/5.6.7.8/tcp/18189"), time.Now())
			require.NoError(t, dir.Upsert(ctx, update))

			got, err = dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Len(t, got.Addresses, 2)
			assert.Equal(t, "comms/1.0", got.UserAgent)
			assert.Equal(t, types.FeaturesCommunicationNode, got.Features, "零值能力位不覆盖已有值")
			assert.Equal(t, []types.ProtocolID{"/comms/messaging/1"}, got.SupportedProtocols)

			// 返回副本
			got.Addresses = nil
			again, err := dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Len(t, again.Addresses, 2)
		})
	}
}

// TestDirectory_RejectsMismatchedKey 测试公钥与 NodeID 不匹配
func TestDirectory_RejectsMismatchedKey(t *testing.T) {
	ctx := context.Background()

	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := newTestPeer(t)
			other := newTestPeer(t)
			p.PublicKey = other.PublicKey

			assert.ErrorIs(t, dir.Upsert(ctx, p), ErrInvalidPublicKey)
		})
	}
}

// TestDirectory_AddressStats 测试地址拨号统计
func TestDirectory_AddressStats(t *testing.T) {
	ctx := context.Background()

	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			addr := ma.StringCast("/ip4/1.2.3.4/tcp/18189")
			p := newTestPeer(t, addr.String())
			p.Flags = types.FlagOffline
			require.NoError(t, dir.Upsert(ctx, p))

			require.NoError(t, dir.MarkAddressFailure(ctx, p.NodeID, addr))
			require.NoError(t, dir.MarkAddressFailure(ctx, p.NodeID, addr))

			got, err := dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Equal(t, uint32(2), got.Addresses[0].FailedAttempts)

			require.NoError(t, dir.MarkAddressSuccess(ctx, p.NodeID, addr))
			got, err = dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Zero(t, got.Addresses[0].FailedAttempts)
			assert.False(t, got.Addresses[0].LastSuccess.IsZero())
			assert.Zero(t, got.Flags&types.FlagOffline, "成功连接清除离线标志")

			unknown := newTestPeer(t)
			assert.ErrorIs(t, dir.MarkAddressSuccess(ctx, unknown.NodeID, addr), ErrNotFound)
			assert.ErrorIs(t, dir.MarkAddressFailure(ctx, unknown.NodeID, addr), ErrNotFound)
		})
	}
}

// TestDirectory_All 测试列举与关闭
func TestDirectory_All(t *testing.T) {
	ctx := context.Background()

	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, dir.Upsert(ctx, newTestPeer(t, "/ip4/1.2.3.4/tcp/1")))
			}
			all, err := dir.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 5)
			for i := 1; i < len(all); i++ {
				assert.Negative(t, all[i-1].NodeID.Compare(all[i].NodeID))
			}

			require.NoError(t, dir.Close())
			_, err = dir.Find(ctx, all[0].NodeID)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

// TestDirectory_Concurrent 测试并发写入
func TestDirectory_Concurrent(t *testing.T) {
	ctx := context.Background()

	for name, dir := range backends(t) {
		t.Run(name, func(t *testing.T) {
			addr := ma.StringCast("/ip4/1.2.3.4/tcp/18189")
			p := newTestPeer(t, addr.String())
			require.NoError(t, dir.Upsert(ctx, p))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, dir.MarkAddressFailure(ctx, p.NodeID, addr))
				}()
			}
			wg.Wait()

			got, err := dir.Find(ctx, p.NodeID)
			require.NoError(t, err)
			assert.Equal(t, uint32(20), got.Addresses[0].FailedAttempts)
		})
	}
}

// TestBadgerDirectory_Persistence 测试重启后数据保留
func TestBadgerDirectory_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "peers")

	p := newTestPeer(t, "/ip4/1.2.3.4/tcp/18189", "/ip6/::1/tcp/18189")
	p.UserAgent = "comms/test"

	dir, err := NewBadgerDirectory(BadgerOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, dir.Upsert(ctx, p))
	require.NoError(t, dir.Close())

	dir, err = NewBadgerDirectory(BadgerOptions{Path: path})
	require.NoError(t, err)
	defer dir.Close()

	got, err := dir.Find(ctx, p.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "comms/test", got.UserAgent)
	require.Len(t, got.Addresses, 2)
	assert.True(t, got.Addresses[1].Addr.Equal(ma.StringCast("/ip6/::1/tcp/18189")))
	assert.True(t, got.AddedAt.Equal(p.AddedAt))
}

// TestDecodePeer_Invalid 测试损坏记录
func TestDecodePeer_Invalid(t *testing.T) {
	_, err := decodePeer([]byte{0xff})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = decodePeer(nil)
	assert.ErrorIs(t, err, ErrInvalidRecord, "缺少公钥")
}

// TestModule 测试 fx 模块
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Peerstore.Backend = "badger"
	cfg.Peerstore.Path = filepath.Join(t.TempDir(), "peers")

	var dir interfaces.PeerDirectory
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&dir),
	)
	app.RequireStart()
	_, ok := dir.(*BadgerDirectory)
	assert.True(t, ok)
	app.RequireStop()

	_, err := dir.All(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
