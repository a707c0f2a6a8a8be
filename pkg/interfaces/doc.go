// Package interfaces 定义连接管理器依赖的外部协作者接口
//
// 一个接口文件对应一个实现目录：
//   - transport.go  - 传输层（internal/core/transport/...）
//   - security.go   - 安全握手（internal/core/security/noise）
//   - peerstore.go  - 节点目录（internal/core/peerstore）
//   - backoff.go    - 拨号退避策略（internal/core/connmgr）
//   - protocol.go   - 协议处理器与子流（internal/core/protocol）
//
// 连接管理器只依赖这些接口，测试可以替换为 tests/mocks 中的实现。
package interfaces
