// Package eventbus 实现类型化的尽力而为广播
//
// 连接管理器通过 Broadcaster 向外部订阅者发布生命周期事件：
//   - Publish 从不阻塞，订阅者缓冲区满时丢弃事件
//   - 没有订阅者时事件直接丢弃，不视为错误
//   - 每丢弃 100 个事件输出一次慢消费者警告
//
// 使用方式：
//
//	bus := eventbus.New[connmgr.Event](eventbus.WithBufferSize(32))
//	sub, _ := bus.Subscribe()
//	defer sub.Close()
//	for ev := range sub.Out() {
//	    ...
//	}
package eventbus

import "github.com/dep2p/go-comms/pkg/lib/log"

var logger = log.Logger("core/eventbus")
