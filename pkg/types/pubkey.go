package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidPublicKey 无效的公钥
var ErrInvalidPublicKey = errors.New("invalid public key")

// EncodePublicKey 返回公钥的 Base58 表示
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// ParsePublicKey 解析 Base58 编码的 Ed25519 公钥
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
