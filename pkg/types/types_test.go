package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

// TestNodeID_Derivation 测试 NodeID 派生与解析
func TestNodeID_Derivation(t *testing.T) {
	pub := newKey(t)
	id := NodeIDFromPublicKey(pub)

	assert.False(t, id.IsEmpty())
	assert.Equal(t, id, NodeIDFromPublicKey(pub), "派生必须确定")
	assert.True(t, id.MatchesPublicKey(pub))
	assert.False(t, id.MatchesPublicKey(newKey(t)))
	assert.False(t, id.MatchesPublicKey(pub[:10]))

	parsed, err := ParseNodeID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.ShortString(), 8)

	_, err = ParseNodeID("0OIl")
	assert.ErrorIs(t, err, ErrInvalidNodeID)
	_, err = NodeIDFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidNodeID)

	t.Log("✅ NodeID 派生测试通过")
}

// TestNetwork 测试网络字节与名称
func TestNetwork(t *testing.T) {
	n, err := ParseNetwork("Weatherwax")
	require.NoError(t, err)
	assert.Equal(t, NetworkWeatherwax, n)
	assert.Equal(t, byte(0x23), n.Byte())

	_, ok := NetworkFromByte(LivenessWireByte)
	assert.False(t, ok, "存活字节不能与任何网络字节冲突")

	_, err = ParseNetwork("discworld")
	assert.Error(t, err)

	var decoded Network
	require.NoError(t, decoded.UnmarshalText([]byte("localnet")))
	assert.Equal(t, NetworkLocalNet, decoded)
	assert.Equal(t, "unknown(0x99)", Network(0x99).String())
}

// TestPeer_AddressBookkeeping 测试地址统计
func TestPeer_AddressBookkeeping(t *testing.T) {
	a1 := ma.StringCast("/ip4/1.2.3.4/tcp/18189")
	a2 := ma.StringCast("/ip4/5.6.7.8/tcp/18189")
	p := NewPeer(newKey(t), []ma.Multiaddr{a1}, FeaturesCommunicationNode)

	p.AddAddress(a1, time.Now())
	p.AddAddress(a2, time.Now())
	require.Len(t, p.Addresses, 2)

	p.MarkAddressFailure(a2)
	p.MarkAddressFailure(a2)
	assert.Equal(t, uint32(2), p.Addresses[1].FailedAttempts)

	now := time.Now()
	p.Flags |= FlagOffline
	p.MarkAddressSuccess(a2, now)
	assert.Equal(t, uint32(0), p.Addresses[1].FailedAttempts)
	assert.Equal(t, now, p.Addresses[1].LastSuccess)
	assert.Zero(t, p.Flags&FlagOffline)

	clone := p.Clone()
	clone.Addresses[0].FailedAttempts = 9
	assert.Equal(t, uint32(0), p.Addresses[0].FailedAttempts, "Clone 必须是深拷贝")
	assert.True(t, p.Features.Has(FeatureMessagePropagation))
}

// TestPublicKey_Encoding 测试公钥 Base58 编解码
func TestPublicKey_Encoding(t *testing.T) {
	pub := newKey(t)

	parsed, err := ParsePublicKey(EncodePublicKey(pub))
	require.NoError(t, err)
	assert.True(t, pub.Equal(parsed))

	_, err = ParsePublicKey("0OIl")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = ParsePublicKey(EncodePublicKey(pub[:16]))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	t.Log("✅ 公钥编码测试通过")
}
