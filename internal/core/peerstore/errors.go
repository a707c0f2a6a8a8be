package peerstore

import "errors"

var (
	// ErrNotFound 节点未找到
	ErrNotFound = errors.New("peer not found")

	// ErrInvalidPublicKey 公钥与 NodeID 不匹配
	ErrInvalidPublicKey = errors.New("invalid public key for peer")

	// ErrInvalidRecord 持久化记录无法解码
	ErrInvalidRecord = errors.New("invalid peer record")

	// ErrClosed 目录已关闭
	ErrClosed = errors.New("peerstore closed")
)
