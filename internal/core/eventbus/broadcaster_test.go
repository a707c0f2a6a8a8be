package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	n int
}

// TestBroadcaster_Publish 测试多订阅者接收
func TestBroadcaster_Publish(t *testing.T) {
	b := New[testEvent]()

	// 没有订阅者时不报错
	assert.Equal(t, 0, b.Publish(testEvent{n: 0}))

	s1, err := b.Subscribe()
	require.NoError(t, err)
	s2, err := b.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 2, b.SubscriberCount())

	assert.Equal(t, 2, b.Publish(testEvent{n: 1}))

	for _, s := range []*Subscription[testEvent]{s1, s2} {
		select {
		case ev := <-s.Out():
			assert.Equal(t, 1, ev.n)
		case <-time.After(time.Second):
			t.Fatal("未收到事件")
		}
	}

	t.Log("✅ 广播测试通过")
}

// TestBroadcaster_SlowSubscriber 测试慢消费者丢弃而不阻塞
func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := New[testEvent](WithBufferSize(2), WithName("test"))
	slow, err := b.Subscribe()
	require.NoError(t, err)
	defer slow.Close()

	for i := 0; i < 5; i++ {
		b.Publish(testEvent{n: i})
	}
	assert.Equal(t, int64(3), b.Dropped())

	assert.Equal(t, 0, (<-slow.Out()).n)
	assert.Equal(t, 1, (<-slow.Out()).n)
}

// TestSubscription_Close 测试取消订阅
func TestSubscription_Close(t *testing.T) {
	b := New[testEvent]()
	s, err := b.Subscribe()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-s.Out()
	assert.False(t, ok, "通道应已关闭")
	assert.Equal(t, 0, b.Publish(testEvent{}))
}

// TestBroadcaster_Close 测试关闭广播器
func TestBroadcaster_Close(t *testing.T) {
	b := New[testEvent]()
	s, err := b.Subscribe()
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-s.Out()
	assert.False(t, ok)
	require.NoError(t, s.Close())

	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, b.Publish(testEvent{}))
}

// TestBroadcaster_Concurrent 测试并发发布与退订
func TestBroadcaster_Concurrent(t *testing.T) {
	b := New[testEvent](WithBufferSize(1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(testEvent{n: j})
			}
		}()
		go func() {
			defer wg.Done()
			s, err := b.Subscribe()
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			_ = s.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount())
}
