package identify

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-comms/pkg/lib/log"
)

var logger = log.Logger("core/identify")

// WriteMessage 写出 varint 长度前缀的身份消息
func WriteMessage(w io.Writer, pi *PeerIdentity) error {
	body := pi.Marshal()
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}
	frame := append(varint.ToUvarint(uint64(len(body))), body...)
	_, err := w.Write(frame)
	return err
}

// ReadMessage 读取一条身份消息
//
// 长度前缀逐字节读取，不会越过消息边界，后续字节留给多路复用层。
func ReadMessage(r io.Reader) (*PeerIdentity, error) {
	size, err := varint.ReadUvarint(&byteReader{r: r})
	if err != nil {
		return nil, fmt.Errorf("%w: length: %v", ErrInvalidMessage, err)
	}
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

// Exchange 与对端交换身份消息
//
// 双方同时发送再读取，发起方与响应方流程相同。ctx 的截止时间与取消
// 作用到连接的读写截止时间，返回前清除。对端网络与本端不同时返回
// ErrNetworkMismatch。
func Exchange(ctx context.Context, conn net.Conn, local *PeerIdentity) (*PeerIdentity, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		stop()
		_ = conn.SetDeadline(time.Time{})
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- WriteMessage(conn, local)
	}()

	remote, err := ReadMessage(conn)
	if err != nil {
		// 解除可能阻塞的写
		_ = conn.SetDeadline(time.Unix(1, 0))
	}
	if werr := <-writeErr; err == nil && werr != nil {
		err = werr
	}
	if err != nil {
		if cerr := contextErr(ctx); cerr != nil {
			return nil, fmt.Errorf("identify: %w", cerr)
		}
		return nil, fmt.Errorf("identify: %w", err)
	}

	if remote.Network != local.Network {
		logger.Debug("对端网络不一致", "local", local.Network, "remote", remote.Network)
		return nil, fmt.Errorf("%w: local %s, remote %s", ErrNetworkMismatch, local.Network, remote.Network)
	}
	return remote, nil
}

// contextErr 返回 ctx 的错误；截止时间已过但计时器尚未触发时同样视为超时
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

// byteReader 将 io.Reader 适配为 io.ByteReader
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
