package noise

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

type result struct {
	conn interfaces.SecureConn
	err  error
}

// handshakePair 在 net.Pipe 两端并发握手
func handshakePair(t *testing.T, clientKey, serverKey ed25519.PrivateKey, expected ed25519.PublicKey) (client, server result) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})

	ct, err := New(clientKey)
	require.NoError(t, err)
	st, err := New(serverKey)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		sc, err := st.Handshake(ctx, s, false, nil)
		if err != nil {
			_ = s.Close()
		}
		done <- result{sc, err}
	}()

	cc, err := ct.Handshake(ctx, c, true, expected)
	if err != nil {
		_ = c.Close()
	}
	return result{cc, err}, <-done
}

// TestHandshake_Success 测试握手与双向认证
func TestHandshake_Success(t *testing.T) {
	clientKey, serverKey := newKey(t), newKey(t)
	serverPub := serverKey.Public().(ed25519.PublicKey)

	client, server := handshakePair(t, clientKey, serverKey, serverPub)
	require.NoError(t, client.err)
	require.NoError(t, server.err)

	assert.True(t, client.conn.RemotePublicKey().Equal(serverPub))
	assert.True(t, server.conn.RemotePublicKey().Equal(clientKey.Public().(ed25519.PublicKey)))

	go func() { _, _ = client.conn.Write([]byte("hello noise")) }()
	buf := make([]byte, 11)
	_, err := io.ReadFull(server.conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello noise", string(buf))

	t.Log("✅ Noise 握手测试通过")
}

// TestHandshake_PublicKeyMismatch 测试期望公钥不符
func TestHandshake_PublicKeyMismatch(t *testing.T) {
	clientKey, serverKey := newKey(t), newKey(t)
	other := newKey(t).Public().(ed25519.PublicKey)

	client, _ := handshakePair(t, clientKey, serverKey, other)
	assert.ErrorIs(t, client.err, ErrPublicKeyMismatch)
}

// TestHandshake_ContextCancel 测试对端静默时握手被取消
func TestHandshake_ContextCancel(t *testing.T) {
	c, s := net.Pipe()
	defer c.Close()
	defer s.Close()

	// 对端只读不写
	go func() { _, _ = io.Copy(io.Discard, s) }()

	tr, err := New(newKey(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tr.Handshake(ctx, c, true, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestSecureConn_LargeWrite 测试超过单帧上限的写入被分片
func TestSecureConn_LargeWrite(t *testing.T) {
	client, server := handshakePair(t, newKey(t), newKey(t), nil)
	require.NoError(t, client.err)
	require.NoError(t, server.err)

	payload := make([]byte, 3*maxPlaintext+123)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		n, err := client.conn.Write(payload)
		if err == nil && n != len(payload) {
			err = io.ErrShortWrite
		}
		errCh <- err
	}()

	got := make([]byte, len(payload))
	_, err = io.ReadFull(server.conn, got)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.True(t, bytes.Equal(payload, got))
}

// TestVerifyPayload_Forged 测试签名未覆盖静态公钥
func TestVerifyPayload_Forged(t *testing.T) {
	priv := newKey(t)
	curvePub, err := ed25519ToCurve25519Public(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	payload := encodePayload(priv, curvePub)
	pub, err := verifyPayload(payload, curvePub)
	require.NoError(t, err)
	assert.True(t, pub.Equal(priv.Public().(ed25519.PublicKey)))

	// 另一把身份密钥的静态公钥
	otherCurve, err := ed25519ToCurve25519Public(newKey(t).Public().(ed25519.PublicKey))
	require.NoError(t, err)
	_, err = verifyPayload(payload, otherCurve)
	assert.ErrorIs(t, err, ErrInvalidHandshake)

	_, err = verifyPayload([]byte{0x0a, 0x01}, curvePub)
	assert.ErrorIs(t, err, ErrInvalidHandshake)
}
