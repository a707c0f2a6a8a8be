package yamux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/hashicorp/yamux"
)

// ErrMuxerClosed 会话已关闭
var ErrMuxerClosed = errors.New("muxer closed")

// Muxer 封装 yamux.Session
type Muxer struct {
	session  *yamux.Session
	isServer bool
	closed   atomic.Bool
}

// NewServer 以服务端身份（入站连接）建立会话
func NewServer(conn net.Conn, cfg *yamux.Config) (*Muxer, error) {
	if cfg == nil {
		cfg = DefaultYamuxConfig()
	}
	s, err := yamux.Server(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("yamux server: %w", err)
	}
	return &Muxer{session: s, isServer: true}, nil
}

// NewClient 以客户端身份（出站连接）建立会话
func NewClient(conn net.Conn, cfg *yamux.Config) (*Muxer, error) {
	if cfg == nil {
		cfg = DefaultYamuxConfig()
	}
	s, err := yamux.Client(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("yamux client: %w", err)
	}
	return &Muxer{session: s}, nil
}

// OpenStream 打开子流
//
// yamux 的 OpenStream 不接受 context，这里在单独的 goroutine 中等待，
// ctx 先结束时孤立的流会被关闭。
func (m *Muxer) OpenStream(ctx context.Context) (*Stream, error) {
	if m.IsClosed() {
		return nil, ErrMuxerClosed
	}

	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		s, err := m.session.OpenStream()
		resultCh <- result{stream: s, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.stream != nil {
				_ = r.stream.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("open stream: %w", r.err)
		}
		return newStream(r.stream), nil
	}
}

// AcceptStream 接受对端打开的子流
func (m *Muxer) AcceptStream() (*Stream, error) {
	s, err := m.session.AcceptStream()
	if err != nil {
		if m.IsClosed() {
			return nil, ErrMuxerClosed
		}
		return nil, err
	}
	return newStream(s), nil
}

// Close 关闭会话，底层连接随之关闭
func (m *Muxer) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.session.Close()
}

// IsClosed 检查是否已关闭（本端关闭或对端断开）
func (m *Muxer) IsClosed() bool {
	return m.closed.Load() || m.session.IsClosed()
}

// CloseChan 会话关闭时关闭的通道
func (m *Muxer) CloseChan() <-chan struct{} {
	return m.session.CloseChan()
}

// NumStreams 当前活跃子流数
func (m *Muxer) NumStreams() int {
	return m.session.NumStreams()
}

// IsServer 是否为服务端
func (m *Muxer) IsServer() bool {
	return m.isServer
}
