package identify

import "errors"

var (
	// ErrInvalidMessage 身份消息格式错误
	ErrInvalidMessage = errors.New("identify: invalid message")

	// ErrMessageTooLarge 身份消息超过上限
	ErrMessageTooLarge = errors.New("identify: message too large")

	// ErrNetworkMismatch 对端属于不同网络
	ErrNetworkMismatch = errors.New("identify: network mismatch")
)
