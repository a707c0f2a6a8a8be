package eventbus

import "sync"

// Subscription 订阅
type Subscription[T any] struct {
	b         *Broadcaster[T]
	out       chan T
	closeOnce sync.Once
}

// Out 返回事件通道，订阅关闭后通道被关闭
func (s *Subscription[T]) Out() <-chan T {
	return s.out
}

// Close 取消订阅，可重复调用
func (s *Subscription[T]) Close() error {
	s.b.remove(s)
	return nil
}
