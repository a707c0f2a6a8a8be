package connmgr

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/security/noise"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
	"github.com/dep2p/go-comms/tests/mocks"
)

// testNode 测试用的完整管理器实例
type testNode struct {
	id        *identity.Identity
	mgr       *Manager
	req       *Requester
	events    *eventbus.Broadcaster[Event]
	directory interfaces.PeerDirectory
	cancel    context.CancelFunc
	runErr    chan error
}

type nodeParams struct {
	cfg       Config
	transport interfaces.Transport
	directory interfaces.PeerDirectory
	backoff   interfaces.BackoffPolicy
	opts      []Option
}

// testConfig 本地测试配置
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenerAddress = ma.StringCast("/ip4/127.0.0.1/tcp/0")
	cfg.Network = types.NetworkLocalNet
	cfg.AllowTestAddresses = true
	cfg.MaxDialAttempts = 3
	cfg.TimeToFirstByte = 2 * time.Second
	cfg.HandshakeTimeout = 5 * time.Second
	cfg.DialTimeout = 5 * time.Second
	cfg.LivenessMaxSessions = 0
	cfg.UserAgent = "comms-test/0.1"
	return cfg
}

func generateIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate(types.FeaturesCommunicationNode)
	require.NoError(t, err)
	return id
}

// newTestNode 创建管理器但不运行
func newTestNode(t *testing.T, p nodeParams) *testNode {
	t.Helper()

	id := generateIdentity(t)
	secure, err := noise.New(id.PrivateKey())
	require.NoError(t, err)

	if p.transport == nil {
		p.transport = mocks.NewMockTransport()
	}
	if p.directory == nil {
		p.directory = mocks.NewMockPeerDirectory()
	}
	if p.backoff == nil {
		p.backoff = NoBackoff{}
	}

	events := eventbus.New[Event](eventbus.WithBufferSize(64))
	requests := make(chan Request, RequestChannelSize)
	opts := append([]Option{WithMetrics(newUnregisteredMetrics())}, p.opts...)

	mgr, err := New(p.cfg, p.transport, secure, p.backoff, requests, id, p.directory, events, opts...)
	require.NoError(t, err)

	n := &testNode{
		id:        id,
		mgr:       mgr,
		req:       NewRequester(requests, events, mgr.Complete()),
		events:    events,
		directory: p.directory,
		runErr:    make(chan error, 1),
	}
	t.Cleanup(n.stop)
	return n
}

// start 运行管理器并等待监听完成
func (n *testNode) start(t *testing.T) ListenerInfo {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go func() { n.runErr <- n.mgr.Run(ctx) }()

	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	info, err := n.req.WaitUntilListening(wctx)
	require.NoError(t, err)
	return info
}

func (n *testNode) stop() {
	if n.cancel != nil {
		n.cancel()
		select {
		case <-n.mgr.Complete():
		case <-time.After(5 * time.Second):
		}
	}
	_ = n.events.Close()
}

// subscribe 订阅事件，测试结束时自动关闭
func (n *testNode) subscribe(t *testing.T) *eventbus.Subscription[Event] {
	t.Helper()
	sub, err := n.req.Subscribe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// waitEvent 等待满足条件的事件
func waitEvent[E Event](t *testing.T, sub *eventbus.Subscription[Event], match func(E) bool) E {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Out():
			if !ok {
				t.Fatal("subscription closed")
			}
			if e, ok := ev.(E); ok && (match == nil || match(e)) {
				return e
			}
		case <-timeout:
			var zero E
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// peerRecord 构造节点记录
func peerRecord(t *testing.T, addrs ...string) *types.Peer {
	t.Helper()
	id := generateIdentity(t)
	mas := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		mas = append(mas, ma.StringCast(a))
	}
	return types.NewPeer(id.PublicKey(), mas, types.FeaturesCommunicationNode)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
