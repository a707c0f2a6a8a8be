// Package mocks 提供连接管理器协作者的测试替身
//
// # 传输 Mock
//
//   - MockTransport: 模拟 interfaces.Transport，记录拨号与监听调用
//   - MockListener: 模拟 interfaces.Listener，通过 Push 注入入站连接
//
// # 节点目录 Mock
//
//   - MockPeerDirectory: 模拟 interfaces.PeerDirectory，内存表加调用计数
//
// # 设计原则
//
// 1. 函数式注入: 通过 XxxFunc 字段覆盖单个方法
// 2. 调用记录: 记录调用次数，便于验证单次拨号等行为
// 3. 并发安全: 拨号器与监听器会在多个 goroutine 中调用
//
// # 使用示例
//
//	tr := mocks.NewMockTransport()
//	tr.DialFunc = func(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
//	    return nil, errors.New("unreachable")
//	}
//	dir := mocks.NewMockPeerDirectory(peer)
package mocks
