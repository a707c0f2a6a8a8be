package connmgr

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-comms/pkg/types"
)

// 连接管理器错误定义
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("connmgr: invalid config")

	// ErrListenerBind 监听器绑定失败（主监听器为致命错误）
	ErrListenerBind = errors.New("connmgr: failed to bind listener")

	// ErrAuxListenerUnavailable 辅助监听器不可用
	ErrAuxListenerUnavailable = errors.New("connmgr: auxiliary listener unavailable")

	// ErrAlreadyRunning Run 被重复调用
	ErrAlreadyRunning = errors.New("connmgr: manager already running")

	// ErrManagerShutdown 管理器已停止
	ErrManagerShutdown = errors.New("connmgr: manager shut down")

	// ErrDialExhausted 所有地址与尝试次数均已用尽
	ErrDialExhausted = errors.New("connmgr: dial attempts exhausted")

	// ErrDialCancelled 拨号被取消
	ErrDialCancelled = errors.New("connmgr: dial cancelled")

	// ErrNoAddresses 节点没有可拨号的地址
	ErrNoAddresses = errors.New("connmgr: peer has no dialable addresses")

	// ErrDialSelf 拨号目标为本节点
	ErrDialSelf = errors.New("connmgr: cannot dial self")

	// ErrPeerBanned 节点已被封禁
	ErrPeerBanned = errors.New("connmgr: peer is banned")

	// ErrPeerIdentityMismatch 握手披露的公钥与期望节点不符
	ErrPeerIdentityMismatch = errors.New("connmgr: peer identity mismatch")

	// ErrTimeToFirstByte 入站连接首字节超时
	ErrTimeToFirstByte = errors.New("connmgr: time to first byte exceeded")

	// ErrUnexpectedWireByte 首字节既不是本网络字节也不是存活检测字节
	ErrUnexpectedWireByte = errors.New("connmgr: unexpected wire mode byte")

	// ErrInboundRejected 入站连接被拒绝
	ErrInboundRejected = errors.New("connmgr: inbound connection rejected")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connmgr: connection closed")
)

// DialError 拨号失败，记录每次尝试的错误
type DialError struct {
	NodeID   types.NodeID
	Attempts int
	Errors   []error
}

func (e *DialError) Error() string {
	switch len(e.Errors) {
	case 0:
		return fmt.Sprintf("failed to dial %s: unknown error", e.NodeID.ShortString())
	case 1:
		return fmt.Sprintf("failed to dial %s after %d attempt(s): %v", e.NodeID.ShortString(), e.Attempts, e.Errors[0])
	default:
		return fmt.Sprintf("failed to dial %s after %d attempt(s): last error: %v",
			e.NodeID.ShortString(), e.Attempts, e.Errors[len(e.Errors)-1])
	}
}

// Unwrap 返回全部尝试错误，errors.Is 可匹配其中任意一个
func (e *DialError) Unwrap() []error {
	return e.Errors
}

// Is 所有 DialError 都匹配 ErrDialExhausted
func (e *DialError) Is(target error) bool {
	return target == ErrDialExhausted
}

// LastError 最后一次尝试的错误
func (e *DialError) LastError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
