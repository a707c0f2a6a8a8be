package yamux

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// Stream 封装 yamux.Stream，记录协商出的协议
type Stream struct {
	stream   *yamux.Stream
	protocol atomic.Value // types.ProtocolID
	closed   atomic.Bool
}

// 确保实现接口
var _ interfaces.Substream = (*Stream)(nil)

func newStream(s *yamux.Stream) *Stream {
	return &Stream{stream: s}
}

// Read 从流中读取数据
func (s *Stream) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

// Write 向流写入数据
func (s *Stream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Close 关闭流
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.stream.Close()
}

// ID 返回流 ID
func (s *Stream) ID() uint32 {
	return s.stream.StreamID()
}

// Protocol 返回协商出的协议，协商前为空
func (s *Stream) Protocol() types.ProtocolID {
	p, _ := s.protocol.Load().(types.ProtocolID)
	return p
}

// SetProtocol 记录协商结果
func (s *Stream) SetProtocol(p types.ProtocolID) {
	s.protocol.Store(p)
}

// SetDeadline 设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}
