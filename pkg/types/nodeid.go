package types

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ============================================================================
//                              NodeID - 节点标识
// ============================================================================

// NodeIDSize NodeID 字节长度
const NodeIDSize = 13

// NodeID 节点唯一标识符
//
// 由公钥派生：blake2b(publicKey) 截取 13 字节。
//
// 外部表示格式：
//   - String(): Base58 编码
//   - ShortString(): Base58 前 8 个字符，用于日志
type NodeID [NodeIDSize]byte

// EmptyNodeID 空节点ID
var EmptyNodeID NodeID

// ErrInvalidNodeID 无效的节点ID错误
var ErrInvalidNodeID = errors.New("invalid node id")

// NodeIDFromPublicKey 从 Ed25519 公钥派生 NodeID
func NodeIDFromPublicKey(pub ed25519.PublicKey) NodeID {
	var id NodeID
	h, err := blake2b.New(NodeIDSize, nil)
	if err != nil {
		// blake2b 仅在长度越界或 key 过长时报错
		panic(err)
	}
	h.Write(pub)
	copy(id[:], h.Sum(nil))
	return id
}

// ParseNodeID 解析 Base58 编码的 NodeID
func ParseNodeID(s string) (NodeID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return EmptyNodeID, fmt.Errorf("%w: %v", ErrInvalidNodeID, err)
	}
	return NodeIDFromBytes(raw)
}

// NodeIDFromBytes 从原始字节构造 NodeID
func NodeIDFromBytes(raw []byte) (NodeID, error) {
	var id NodeID
	if len(raw) != NodeIDSize {
		return EmptyNodeID, fmt.Errorf("%w: length %d", ErrInvalidNodeID, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String 返回 NodeID 的 Base58 字符串表示
func (id NodeID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 NodeID 的短字符串表示
func (id NodeID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 NodeID 的字节切片
func (id NodeID) Bytes() []byte {
	return id[:]
}

// IsEmpty 检查是否为空
func (id NodeID) IsEmpty() bool {
	return id == EmptyNodeID
}

// Equal 比较两个 NodeID
func (id NodeID) Equal(other NodeID) bool {
	return id == other
}

// Compare 按字节序比较，用于确定性排序
func (id NodeID) Compare(other NodeID) int {
	return bytes.Compare(id[:], other[:])
}

// MatchesPublicKey 检查公钥是否派生出该 NodeID
func (id NodeID) MatchesPublicKey(pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return NodeIDFromPublicKey(pub) == id
}
