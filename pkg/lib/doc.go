// Package lib 包含与架构组件无关的基础设施工具库
//
//   - log: 基于 log/slog 的组件日志入口
//
// pkg/ 下的其它目录：
//
//   - interfaces/: 协作组件的公共接口
//   - types/: 公共类型（NodeID、Peer、Network、ProtocolID）
package lib
