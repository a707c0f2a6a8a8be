package interfaces

import (
	"context"
	"crypto/ed25519"
	"net"
)

// SecureChannel 安全握手原语
//
// 将原始字节流升级为双向认证的加密通道，并返回对端在握手中披露的长期公钥。
type SecureChannel interface {
	// Handshake 执行握手
	//
	// initiator 为 true 时本端为发起方。expected 非空时，
	// 对端披露的公钥必须与之一致，否则返回的错误满足
	// errors.Is(err, noise.ErrPublicKeyMismatch)。
	// ctx 的 deadline 作用于整个握手。
	Handshake(ctx context.Context, conn net.Conn, initiator bool, expected ed25519.PublicKey) (SecureConn, error)
}

// SecureConn 握手完成后的加密连接
type SecureConn interface {
	net.Conn

	// RemotePublicKey 返回对端长期公钥
	RemotePublicKey() ed25519.PublicKey
}
