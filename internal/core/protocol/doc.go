// Package protocol 实现应用协议注册与子流协商
//
// 连接建立后，对端打开的每条子流都先通过 multistream-select 协商出
// ProtocolID，再由 Registry 交给对应的处理器。处理器接管子流后，
// 连接管理器不再参与该子流的读写。
//
// 未注册的协议在协商阶段被拒绝（multistream 回复 "na"），
// 协商成功但处理器已被注销的子流直接关闭，不向系统其他部分报错。
//
// 使用方式：
//
//	reg := protocol.NewRegistry()
//	notifier := protocol.NewChannelHandler(16)
//	_ = reg.Register("/tari/messaging/0.1.0", notifier)
//	mgr.AddProtocols(reg)
//
//	for n := range notifier.Notifications() {
//	    go serve(n.Stream)
//	}
package protocol

import "github.com/dep2p/go-comms/pkg/lib/log"

var logger = log.Logger("core/protocol")
