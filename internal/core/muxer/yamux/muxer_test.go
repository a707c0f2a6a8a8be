package yamux

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/config"
)

// createConnPair 创建一对真实 TCP 连接
func createConnPair(t *testing.T) (net.Conn, net.Conn) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	var serverConn net.Conn
	var serverErr error
	done := make(chan struct{})

	go func() {
		serverConn, serverErr = listener.Accept()
		close(done)
	}()

	clientConn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)

	<-done
	require.NoError(t, serverErr)
	return serverConn, clientConn
}

// createMuxerPair 创建一对 Muxer（服务端和客户端）
func createMuxerPair(t *testing.T) (*Muxer, *Muxer) {
	serverConn, clientConn := createConnPair(t)

	server, err := NewServer(serverConn, nil)
	require.NoError(t, err)
	client, err := NewClient(clientConn, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

// TestMuxer_OpenAccept 测试打开与接受子流
func TestMuxer_OpenAccept(t *testing.T) {
	server, client := createMuxerPair(t)
	assert.True(t, server.IsServer())
	assert.False(t, client.IsServer())

	accepted := make(chan *Stream, 1)
	go func() {
		s, err := server.AcceptStream()
		if err == nil {
			accepted <- s
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs, err := client.OpenStream(ctx)
	require.NoError(t, err)
	defer cs.Close()

	_, err = cs.Write([]byte("data"))
	require.NoError(t, err)

	var ss *Stream
	select {
	case ss = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("AcceptStream 超时")
	}
	defer ss.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(ss, buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))

	ss.SetProtocol("/comms/test/1")
	assert.Equal(t, "/comms/test/1", string(ss.Protocol()))
	assert.Empty(t, cs.Protocol())

	t.Log("✅ 子流往返测试通过")
}

// TestMuxer_CloseNotifiesPeer 测试关闭后对端感知
func TestMuxer_CloseNotifiesPeer(t *testing.T) {
	server, client := createMuxerPair(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "重复关闭无错误")

	select {
	case <-server.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("服务端未感知关闭")
	}
	assert.True(t, server.IsClosed())

	_, err := client.OpenStream(context.Background())
	assert.ErrorIs(t, err, ErrMuxerClosed)
}

// TestFromConfig 测试配置转换
func TestFromConfig(t *testing.T) {
	yc := FromConfig(config.DefaultTransportConfig().Yamux)
	assert.Equal(t, 256, yc.AcceptBacklog)
	assert.True(t, yc.EnableKeepAlive)

	yc = FromConfig(config.YamuxConfig{})
	assert.False(t, yc.EnableKeepAlive)
	assert.Equal(t, uint32(256*1024), yc.MaxStreamWindowSize)
}
