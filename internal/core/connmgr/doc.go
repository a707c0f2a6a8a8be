// Package connmgr 实现节点连接管理器
//
// 连接管理器负责与不受信任的节点建立、认证、多路复用和拆除加密连接。
//
// # 组成
//
//   - Manager: 单 goroutine 事件循环，唯一的生命周期决策点
//   - dialer: 出站拨号，按 NodeID 去重（后到的请求加入进行中的拨号），有限次重试与退避
//   - listener: 入站接受循环，每个监听器独立的握手并发上限与首字节超时
//   - PeerConnection: 握手与协议识别都成功后才对外可见的连接
//
// # 连接建立流程
//
//	传输连接 -> 线路字节 -> Noise 握手 -> 协议识别 -> yamux -> PeerConnected
//
// 入站连接的首字节决定会话类型：网络字节进入完整握手，
// 存活检测字节进入轻量回显会话（需在 CIDR 白名单内且会话数未满）。
//
// # 使用方式
//
//	requests := make(chan connmgr.Request, connmgr.RequestChannelSize)
//	events := eventbus.New[connmgr.Event]()
//	mgr, err := connmgr.New(cfg, transport, secure, backoff, requests, id, dir, events)
//	mgr.AddProtocols(registry)
//	go mgr.Run(ctx)
//
//	req := connmgr.NewRequester(requests, events, mgr.Complete())
//	info, err := req.WaitUntilListening(ctx)
//	conn, err := req.DialPeer(ctx, nodeID)
//
// # 错误分类
//
// 主监听器绑定失败是唯一的致命错误，Run 不进入事件循环直接返回。
// 辅助监听器绑定失败默认降级为不可用（见 Config.AuxiliaryListenerRequired）。
// 拨号失败通过回复通道与 PeerConnectFailed 事件报告；入站失败只通过
// PeerInboundConnectFailed 事件报告。节点目录的错误原样返回。
package connmgr

import "github.com/dep2p/go-comms/pkg/lib/log"

var logger = log.Logger("core/connmgr")
