// Package types 定义 comms 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 comms 内部包。
// 所有类型都是值类型或只在单一 owner 内修改的记录，用于在各模块间传递数据。
//
// # 文件组织
//
//   - nodeid.go    - NodeID（公钥派生的短标识）
//   - network.go   - Network 网络标识与线路模式字节
//   - peer.go      - Peer 节点记录、PeerAddress、标志位
//   - protocol.go  - ProtocolID
//   - direction.go - 连接方向
package types
