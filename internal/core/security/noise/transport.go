package noise

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
	"github.com/dep2p/go-comms/pkg/types"
)

var logger = log.Logger("core/security/noise")

// Transport Noise 安全通道
type Transport struct {
	priv ed25519.PrivateKey
}

// 确保实现接口
var _ interfaces.SecureChannel = (*Transport)(nil)

// New 使用节点身份私钥创建 Noise 安全通道
func New(priv ed25519.PrivateKey) (*Transport, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("noise: invalid ed25519 private key")
	}
	return &Transport{priv: priv}, nil
}

// Handshake 执行握手
//
// ctx 的截止时间与取消都会作用到底层连接的读写截止时间；
// 握手结束后截止时间被清除。
func (t *Transport) Handshake(ctx context.Context, conn net.Conn, initiator bool, expected ed25519.PublicKey) (interfaces.SecureConn, error) {
	if conn == nil {
		return nil, errors.New("noise: conn is nil")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		// 让阻塞中的读写立即返回
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	res, err := performHandshake(conn, t.priv, initiator)

	if !stop() && ctx.Err() != nil {
		return nil, fmt.Errorf("noise handshake: %w", ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})

	if err != nil {
		if cerr := contextErr(ctx); cerr != nil {
			return nil, fmt.Errorf("noise handshake: %w", cerr)
		}
		return nil, fmt.Errorf("noise handshake: %w", err)
	}

	if len(expected) > 0 && !res.remotePub.Equal(expected) {
		logger.Debug("对端公钥不符",
			"expected", types.NodeIDFromPublicKey(expected).ShortString(),
			"actual", types.NodeIDFromPublicKey(res.remotePub).ShortString())
		return nil, ErrPublicKeyMismatch
	}

	return &secureConn{
		Conn:      conn,
		send:      res.send,
		recv:      res.recv,
		remotePub: res.remotePub,
	}, nil
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
