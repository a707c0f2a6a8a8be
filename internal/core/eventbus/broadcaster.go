package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed 广播器已关闭
var ErrClosed = errors.New("eventbus closed")

// ============================================================================
//                              Broadcaster
// ============================================================================

// Broadcaster 单类型事件广播器
type Broadcaster[T any] struct {
	settings settings

	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	closed bool

	dropCount atomic.Int64
}

// New 创建广播器
func New[T any](opts ...Option) *Broadcaster[T] {
	s := settings{bufferSize: DefaultBufferSize, name: "events"}
	for _, opt := range opts {
		opt(&s)
	}
	return &Broadcaster[T]{
		settings: s,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe 新增订阅者
//
// 订阅只能收到订阅之后发布的事件。
func (b *Broadcaster[T]) Subscribe() (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	sub := &Subscription[T]{
		b:   b,
		out: make(chan T, b.settings.bufferSize),
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Publish 向所有订阅者发布事件，返回成功投递的订阅者数量
func (b *Broadcaster[T]) Publish(ev T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for sub := range b.subs {
		select {
		case sub.out <- ev:
			delivered++
		default:
			dropped := b.dropCount.Add(1)
			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"bus", b.settings.name,
					"dropped", dropped,
					"reason", "subscriber buffer full")
			}
		}
	}
	return delivered
}

// SubscriberCount 当前订阅者数量
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped 累计丢弃的事件数
func (b *Broadcaster[T]) Dropped() int64 {
	return b.dropCount.Load()
}

// Close 关闭广播器及全部订阅
func (b *Broadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		sub.closeOnce.Do(func() { close(sub.out) })
	}
	b.subs = nil
	return nil
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.closeOnce.Do(func() { close(sub.out) })
}
