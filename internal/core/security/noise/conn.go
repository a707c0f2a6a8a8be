package noise

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-comms/pkg/interfaces"
)

const (
	// maxFrameSize Noise 单条消息上限
	maxFrameSize = 65535
	// maxPlaintext 单帧明文上限（扣除 16 字节 AEAD 标签）
	maxPlaintext = maxFrameSize - 16
)

// secureConn Noise 加密连接
type secureConn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	remotePub ed25519.PublicKey

	readMu  sync.Mutex
	readBuf []byte
	readArr []byte

	writeMu  sync.Mutex
	writeArr []byte
}

// 确保实现接口
var _ interfaces.SecureConn = (*secureConn)(nil)

// RemotePublicKey 返回对端身份公钥
func (c *secureConn) RemotePublicKey() ed25519.PublicKey {
	return c.remotePub
}

// Read 读取并解密
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
		return 0, err
	}
	msgLen := int(binary.BigEndian.Uint16(lenBuf[:]))
	if msgLen == 0 {
		return 0, io.EOF
	}

	if cap(c.readArr) < msgLen {
		c.readArr = make([]byte, maxFrameSize)
	}
	enc := c.readArr[:msgLen]
	if _, err := io.ReadFull(c.Conn, enc); err != nil {
		return 0, err
	}

	// 原地解密，明文复用密文缓冲区
	plain, err := c.recv.Decrypt(enc[:0], nil, enc)
	if err != nil {
		return 0, fmt.Errorf("decrypt: %w", err)
	}

	n := copy(p, plain)
	c.readBuf = plain[n:]
	return n, nil
}

// Write 加密并写入，超过单帧上限时分片
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeArr == nil {
		c.writeArr = make([]byte, 0, 2+maxFrameSize)
	}

	written := 0
	for written < len(p) {
		end := written + maxPlaintext
		if end > len(p) {
			end = len(p)
		}

		frame := c.writeArr[:2]
		frame, err := c.send.Encrypt(frame, nil, p[written:end])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		binary.BigEndian.PutUint16(frame[:2], uint16(len(frame)-2))

		if _, err := c.Conn.Write(frame); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}
