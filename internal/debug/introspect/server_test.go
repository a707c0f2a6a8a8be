package introspect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-comms/internal/core/connmgr"
	"github.com/dep2p/go-comms/internal/core/eventbus"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/pkg/types"
	"github.com/dep2p/go-comms/tests/mocks"
)

// startServer 在随机端口启动服务
func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	server := New(cfg)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func get(t *testing.T, server *Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// fakeRequester 以固定结果应答连接查询
func fakeRequester(t *testing.T) *connmgr.Requester {
	t.Helper()
	requests := make(chan connmgr.Request, 1)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case req := <-requests:
				if r, ok := req.(connmgr.ActiveConnectionsRequest); ok {
					r.Reply <- nil
				}
			case <-done:
				return
			}
		}
	}()
	return connmgr.NewRequester(requests, eventbus.New[connmgr.Event](), done)
}

func TestServer_StartStop(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})
	assert.Equal(t, "127.0.0.1:0", server.Addr())

	ctx := context.Background()
	require.NoError(t, server.Start(ctx))
	assert.True(t, server.running)
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	// 重复启动无效
	require.NoError(t, server.Start(ctx))

	require.NoError(t, server.Stop())
	assert.False(t, server.running)
	require.NoError(t, server.Stop())

	assert.Equal(t, DefaultAddr, New(Config{}).config.Addr)

	t.Log("✅ 诊断服务启停测试通过")
}

func TestServer_NoSources(t *testing.T) {
	server := startServer(t, Config{})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, server, "/debug/introspect/node", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, server, "/debug/introspect/connections", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, server, "/debug/introspect/peers", nil))
	assert.Equal(t, http.StatusNotFound, get(t, server, "/metrics", nil))

	var health HealthResponse
	require.Equal(t, http.StatusOK, get(t, server, "/health", &health))
	assert.Equal(t, "degraded", health.Status)

	var full IntrospectResponse
	require.Equal(t, http.StatusOK, get(t, server, "/debug/introspect", &full))
	assert.Nil(t, full.Node)
	assert.NotNil(t, full.Runtime)

	t.Log("✅ 无数据源测试通过")
}

func TestServer_WithSources(t *testing.T) {
	id, err := identity.Generate(types.FeaturesCommunicationNode)
	require.NoError(t, err)
	id.SetPublicAddresses([]ma.Multiaddr{ma.StringCast("/ip4/203.0.113.7/tcp/18189")})

	peer := types.NewPeer(id.PublicKey(), []ma.Multiaddr{ma.StringCast("/ip4/198.51.100.1/tcp/18189")}, types.FeaturesCommunicationNode)
	peer.UserAgent = "comms-test/0.1"

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "comms_test_gauge", Help: "test"})
	registry.MustRegister(gauge)
	gauge.Set(3)

	server := startServer(t, Config{
		Identity:  id,
		Requester: fakeRequester(t),
		Directory: mocks.NewMockPeerDirectory(peer),
		Gatherer:  registry,
	})

	var node NodeInfo
	require.Equal(t, http.StatusOK, get(t, server, "/debug/introspect/node", &node))
	assert.Equal(t, id.NodeID().String(), node.ID)
	assert.Equal(t, types.EncodePublicKey(id.PublicKey()), node.PublicKey)
	assert.Equal(t, []string{"/ip4/203.0.113.7/tcp/18189"}, node.Addresses)

	var conns ConnectionInfo
	require.Equal(t, http.StatusOK, get(t, server, "/debug/introspect/connections", &conns))
	assert.Zero(t, conns.Total)

	var peers []PeerInfo
	require.Equal(t, http.StatusOK, get(t, server, "/debug/introspect/peers", &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "comms-test/0.1", peers[0].UserAgent)

	var health HealthResponse
	require.Equal(t, http.StatusOK, get(t, server, "/health", &health))
	assert.Equal(t, "ok", health.Status)

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "comms_test_gauge 3")

	t.Log("✅ 数据源测试通过")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := startServer(t, Config{})

	resp, err := http.Post("http://"+server.Addr()+"/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_PprofEndpoint(t *testing.T) {
	server := startServer(t, Config{})
	assert.Equal(t, http.StatusOK, get(t, server, "/debug/pprof/", nil))
}

func TestConfigFromUnified(t *testing.T) {
	assert.Nil(t, ConfigFromUnified(nil))
	assert.Nil(t, NewFromParams(Params{}).Server)
}
