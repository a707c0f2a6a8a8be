package noise

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// Params 安全通道依赖
type Params struct {
	fx.In

	Identity *identity.Identity
}

// Output 安全通道输出
type Output struct {
	fx.Out

	SecureChannel interfaces.SecureChannel
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("security",
		fx.Provide(ProvideSecureChannel),
	)
}

// ProvideSecureChannel 提供 Noise 安全通道
func ProvideSecureChannel(p Params) (Output, error) {
	t, err := New(p.Identity.PrivateKey())
	if err != nil {
		return Output{}, err
	}
	return Output{SecureChannel: t}, nil
}
