// Package introspect 提供本地诊断 HTTP 服务
//
// 通过 config.Metrics.ListenAddress 启用，建议只绑定到 127.0.0.1。
//
// # 端点
//
//	GET /metrics                      - Prometheus 指标（注入 Gatherer 时）
//	GET /debug/introspect             - 完整诊断报告 (JSON)
//	GET /debug/introspect/node        - 本节点身份与公布地址
//	GET /debug/introspect/connections - 连接管理器持有的存活连接
//	GET /debug/introspect/peers       - 节点目录中的记录
//	GET /debug/introspect/runtime     - Go 运行时信息
//	GET /debug/pprof/*                - Go pprof 端点
//	GET /health                       - 健康检查，连接管理器停止后为 degraded
package introspect
