// Package comms 提供点对点节点的通信层
//
// 节点之间通过 TCP/QUIC 建立加密连接：首字节标识网络（或存活检测），
// 随后完成 Noise XX 握手与协议识别，最后以 yamux 多路复用出子流，
// 每条子流通过 multistream-select 协商协议并交给注册的处理器。
//
// # 快速开始
//
//	node, err := comms.New(
//	    comms.WithPreset("localtest"),
//	    comms.WithProtocol("/tari/echo/1.0.0", handler),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	conn, err := node.Connect(ctx, peerPublicKey, peerAddr)
//	stream, err := conn.OpenSubstream(ctx, "/tari/echo/1.0.0")
//
// # 组件
//
//	┌────────────────────────────────────────────────────────────┐
//	│  Node (本包)            New / Start / DialPeer / Subscribe │
//	├────────────────────────────────────────────────────────────┤
//	│  connmgr    Manager · Dialer · Listener · Liveness         │
//	├────────────────────────────────────────────────────────────┤
//	│  identify · protocol · muxer/yamux · security/noise        │
//	├────────────────────────────────────────────────────────────┤
//	│  transport (tcp, quic) · peerstore · identity · eventbus   │
//	└────────────────────────────────────────────────────────────┘
//
// 各组件以 fx 模块组装，见 fx.go。
package comms
