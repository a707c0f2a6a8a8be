package quic

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsQUICAddr 测试地址识别
func TestIsQUICAddr(t *testing.T) {
	assert.True(t, IsQUICAddr(ma.StringCast("/ip4/127.0.0.1/udp/18189/quic-v1")))
	assert.True(t, IsQUICAddr(ma.StringCast("/ip6/::1/udp/18189/quic-v1")))
	assert.False(t, IsQUICAddr(ma.StringCast("/ip4/127.0.0.1/tcp/18189")))
	assert.False(t, IsQUICAddr(ma.StringCast("/ip4/127.0.0.1/udp/18189")))
	assert.False(t, IsQUICAddr(nil))
}

// TestTransport_DialListen 测试 QUIC 往返
func TestTransport_DialListen(t *testing.T) {
	tr, err := New(30 * time.Second)
	require.NoError(t, err)

	ln, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)
	defer ln.Close()
	assert.True(t, IsQUICAddr(ln.Multiaddr()))

	echoed := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			echoed <- err
			return
		}
		defer c.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(c, buf); err != nil {
			echoed <- err
			return
		}
		_, err = c.Write(buf)
		echoed <- err
		// 等待客户端关闭，避免 CONNECTION_CLOSE 抢在回显数据之前
		_, _ = io.Copy(io.Discard, c)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := tr.Dial(ctx, ln.Multiaddr())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, c.SetDeadline(time.Now().Add(10*time.Second)))
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	assert.NoError(t, <-echoed)

	t.Log("✅ QUIC 往返测试通过")
}

// TestListener_Close 测试关闭监听器
func TestListener_Close(t *testing.T) {
	tr, err := New(0)
	require.NoError(t, err)

	ln, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = ln.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)
}
