package noise

import "errors"

var (
	// ErrInvalidHandshake 握手消息或身份签名无效
	ErrInvalidHandshake = errors.New("noise: invalid handshake")

	// ErrPublicKeyMismatch 对端公钥与期望不一致
	ErrPublicKeyMismatch = errors.New("noise: remote public key mismatch")
)
