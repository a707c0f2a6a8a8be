package identify

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/pkg/types"
)

func sampleIdentity(t *testing.T, network types.Network) *PeerIdentity {
	t.Helper()
	return &PeerIdentity{
		Network:   network,
		Addresses: []ma.Multiaddr{ma.StringCast("/ip4/203.0.113.7/tcp/18189")},
		Features:  types.FeaturesCommunicationNode,
		UserAgent: "comms-node/0.1.0",
		Protocols: []types.ProtocolID{"/tari/messaging/0.1.0", "/tari/rpc/0.1.0"},
	}
}

// TestMessage_ReadWrite 测试带长度前缀的读写
func TestMessage_ReadWrite(t *testing.T) {
	pi := sampleIdentity(t, types.NetworkStibbons)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, pi))
	buf.WriteString("trailing")

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, pi.Network, got.Network)
	assert.Equal(t, pi.Features, got.Features)
	assert.Equal(t, pi.UserAgent, got.UserAgent)
	assert.Equal(t, pi.Protocols, got.Protocols)
	require.Len(t, got.Addresses, 1)
	assert.True(t, pi.Addresses[0].Equal(got.Addresses[0]))

	// 长度前缀之后的字节不被消费
	assert.Equal(t, "trailing", buf.String())

	t.Log("✅ 身份消息读写测试通过")
}

// TestReadMessage_TooLarge 测试超长消息
func TestReadMessage_TooLarge(t *testing.T) {
	r := bytes.NewReader(varint.ToUvarint(MaxMessageSize + 1))
	_, err := ReadMessage(r)
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	pi := &PeerIdentity{UserAgent: string(make([]byte, MaxMessageSize))}
	assert.ErrorIs(t, WriteMessage(&bytes.Buffer{}, pi), ErrMessageTooLarge)
}

// TestUnmarshal_Invalid 测试格式错误的消息
func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte{0x12, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// 无法解析的 multiaddr
	_, err = Unmarshal([]byte{0x12, 0x02, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// 网络超出单字节
	_, err = Unmarshal([]byte{0x08, 0x80, 0x02})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// 未知字段被跳过，非法协议 ID 被丢弃
	pi, err := Unmarshal([]byte{0x30, 0x01, 0x2a, 0x03, 'b', 'a', 'd'})
	require.NoError(t, err)
	assert.Empty(t, pi.Protocols)
}

func exchangePair(t *testing.T, a, b *PeerIdentity) (gotA, gotB *PeerIdentity, errA, errB error) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		_ = c1.Close()
		_ = c2.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		pi  *PeerIdentity
		err error
	}
	done := make(chan result, 1)
	go func() {
		pi, err := Exchange(ctx, c2, b)
		if err != nil {
			_ = c2.Close()
		}
		done <- result{pi, err}
	}()

	gotA, errA = Exchange(ctx, c1, a)
	if errA != nil {
		_ = c1.Close()
	}
	r := <-done
	return gotA, r.pi, errA, r.err
}

// TestExchange_Success 测试双向交换
func TestExchange_Success(t *testing.T) {
	a := sampleIdentity(t, types.NetworkLocalNet)
	b := &PeerIdentity{Network: types.NetworkLocalNet, UserAgent: "wallet/1.0"}

	gotA, gotB, errA, errB := exchangePair(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "wallet/1.0", gotA.UserAgent)
	assert.Equal(t, a.Protocols, gotB.Protocols)
}

// TestExchange_NetworkMismatch 测试网络不一致
func TestExchange_NetworkMismatch(t *testing.T) {
	a := sampleIdentity(t, types.NetworkMainNet)
	b := sampleIdentity(t, types.NetworkWeatherwax)

	_, _, errA, errB := exchangePair(t, a, b)
	assert.ErrorIs(t, errA, ErrNetworkMismatch)
	assert.ErrorIs(t, errB, ErrNetworkMismatch)
}

// TestExchange_Timeout 测试对端静默
func TestExchange_Timeout(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	// 对端只读不写
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := c2.Read(buf); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Exchange(ctx, c1, sampleIdentity(t, types.NetworkMainNet))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}
