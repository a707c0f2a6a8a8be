package connmgr

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/peerstore"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/internal/core/security/noise"
	"github.com/dep2p/go-comms/internal/core/transport"
)

// TestModule 通过 fx 组装并启动连接管理器
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ConnMgr.ListenerAddress = "/ip4/127.0.0.1/tcp/0"
	cfg.ConnMgr.AllowTestAddresses = true

	registry := prometheus.NewRegistry()
	var req *Requester

	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return registry }),
		identity.Module(),
		transport.Module(),
		noise.Module(),
		peerstore.Module(),
		protocol.Module(),
		Module(),
		fx.Populate(&req),
	)
	app.RequireStart()

	info, err := req.WaitUntilListening(testCtx(t))
	require.NoError(t, err)
	assert.NotEqual(t, "0", mustPort(t, info.BindAddress))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	app.RequireStop()

	t.Log("✅ fx 模块测试通过")
}

// TestModule_BindFailure 端口被占用时启动失败
func TestModule_BindFailure(t *testing.T) {
	first := config.NewConfig()
	first.ConnMgr.ListenerAddress = "/ip4/127.0.0.1/tcp/0"
	first.ConnMgr.AllowTestAddresses = true

	var req *Requester
	app := fxtest.New(t,
		fx.Supply(first),
		identity.Module(), transport.Module(), noise.Module(), peerstore.Module(), protocol.Module(), Module(),
		fx.Populate(&req),
	)
	app.RequireStart()
	defer app.RequireStop()

	info, err := req.WaitUntilListening(testCtx(t))
	require.NoError(t, err)

	second := config.NewConfig()
	second.ConnMgr.ListenerAddress = info.BindAddress.String()
	clash := fx.New(
		fx.NopLogger,
		fx.Supply(second),
		identity.Module(), transport.Module(), noise.Module(), peerstore.Module(), protocol.Module(), Module(),
		fx.Invoke(func(*Requester) {}),
	)
	err = clash.Start(testCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenerBind)

	t.Log("✅ fx 绑定失败测试通过")
}
