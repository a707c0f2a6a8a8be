package comms

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/debug/introspect"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/lib/log"
	"github.com/dep2p/go-comms/pkg/types"
)

var logger = log.Logger("comms")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动、监听器绑定）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// startTimeout Fx App 启动超时
const startTimeout = 30 * time.Second

// closeTimeout Close 停止 Fx App 的超时
const closeTimeout = 15 * time.Second

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node 通信层节点
//
// Node 是门面，聚合身份、连接管理器与节点目录。
// Fx App 只能启动一次，Stop 之后需要重新 New。
type Node struct {
	config *nodeConfig
	app    *fx.App

	mu       sync.Mutex
	state    NodeState
	closed   bool
	listener connmgr.ListenerInfo

	// 由 fx 注入
	identity   *identity.Identity
	requester  *connmgr.Requester
	directory  interfaces.PeerDirectory
	introspect *introspect.Server
}

// New 创建节点
//
// 组件在此时构建，监听器在 Start 中绑定。
func New(opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	installLogging(cfg.config.Log)

	node := &Node{config: cfg}
	app, err := buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 启动节点
//
// 返回时主监听器已经绑定，绑定失败时返回错误。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	switch n.state {
	case StateIdle:
	case StateStopped:
		return ErrNodeClosed
	default:
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	logger.Info("正在启动节点", "nodeID", n.identity.NodeID().ShortString())

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := n.app.Start(startCtx); err != nil {
		n.state = StateStopped
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start: %w", err)
	}

	info, err := n.requester.WaitUntilListening(startCtx)
	if err != nil {
		n.state = StateStopped
		_ = n.app.Stop(context.Background())
		return fmt.Errorf("wait for listener: %w", err)
	}
	n.listener = info
	n.state = StateRunning

	logger.Info("节点已启动",
		"nodeID", n.identity.NodeID().ShortString(),
		"listen", info.BindAddress,
		"aux", info.AuxBindAddress)
	return nil
}

// Stop 停止节点，关闭所有连接与监听器
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	if n.state != StateRunning {
		return ErrNotStarted
	}

	n.state = StateStopping
	logger.Info("正在停止节点")

	err := n.app.Stop(ctx)
	n.state = StateStopped
	if err != nil {
		logger.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

// Close 停止节点（如在运行）并释放资源，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	if n.state != StateRunning {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return n.stopLocked(ctx)
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与地址
// ════════════════════════════════════════════════════════════════════════════

// ID 返回本节点 NodeID
func (n *Node) ID() types.NodeID {
	return n.identity.NodeID()
}

// PublicKey 返回本节点公钥
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.identity.PublicKey()
}

// PublicAddresses 返回协议识别阶段公布的地址
func (n *Node) PublicAddresses() []ma.Multiaddr {
	return n.identity.PublicAddresses()
}

// ListenerInfo 返回实际绑定的监听地址
func (n *Node) ListenerInfo() (connmgr.ListenerInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateRunning {
		return connmgr.ListenerInfo{}, ErrNotStarted
	}
	return n.listener, nil
}

// DiagnosticsAddr 返回诊断服务地址，未启用时为空
func (n *Node) DiagnosticsAddr() string {
	if n.introspect == nil {
		return ""
	}
	return n.introspect.Addr()
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// AddPeer 将节点写入目录，已存在时合并地址
func (n *Node) AddPeer(ctx context.Context, pub ed25519.PublicKey, addrs ...ma.Multiaddr) error {
	if len(pub) != ed25519.PublicKeySize {
		return types.ErrInvalidPublicKey
	}
	return n.directory.Upsert(ctx, types.NewPeer(pub, addrs, types.FeaturesCommunicationNode))
}

// DialPeer 拨号目录中的节点
//
// 对同一节点的并发调用共享同一次拨号。
func (n *Node) DialPeer(ctx context.Context, id types.NodeID) (*connmgr.PeerConnection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.requester.DialPeer(ctx, id)
}

// Connect 写入目录后拨号
func (n *Node) Connect(ctx context.Context, pub ed25519.PublicKey, addrs ...ma.Multiaddr) (*connmgr.PeerConnection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	if err := n.AddPeer(ctx, pub, addrs...); err != nil {
		return nil, err
	}
	return n.requester.DialPeer(ctx, types.NodeIDFromPublicKey(pub))
}

// CancelDial 取消进行中的拨号
func (n *Node) CancelDial(ctx context.Context, id types.NodeID) {
	if n.checkRunning() != nil {
		return
	}
	n.requester.CancelDial(ctx, id)
}

// ActiveConnections 返回当前存活连接
func (n *Node) ActiveConnections(ctx context.Context) ([]*connmgr.PeerConnection, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.requester.ActiveConnections(ctx)
}

// Subscribe 订阅连接生命周期事件
//
// 可在 Start 之前订阅，以免错过启动阶段的事件。
func (n *Node) Subscribe() (*eventbus.Subscription[connmgr.Event], error) {
	return n.requester.Subscribe()
}

// Peer 返回目录中的节点记录
func (n *Node) Peer(ctx context.Context, id types.NodeID) (*types.Peer, error) {
	return n.directory.Find(ctx, id)
}

func (n *Node) checkRunning() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case n.closed:
		return ErrNodeClosed
	case n.state != StateRunning:
		return ErrNotStarted
	default:
		return nil
	}
}
