package protocol

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// Registration 通过 fx value group 注入的协议注册项
type Registration struct {
	ID      types.ProtocolID
	Handler interfaces.ProtocolHandler
}

// Params 协议模块依赖参数
type Params struct {
	fx.In

	Registrations []Registration `group:"protocols"`
}

// Output 协议模块输出
type Output struct {
	fx.Out

	Registry   *Registry
	Negotiator *Negotiator
}

// AsRegistration 将处理器包装为 fx 注册项
//
//	fx.Provide(protocol.AsRegistration("/tari/messaging/0.1.0", handler))
func AsRegistration(id types.ProtocolID, h interfaces.ProtocolHandler) any {
	return fx.Annotate(
		func() Registration { return Registration{ID: id, Handler: h} },
		fx.ResultTags(`group:"protocols"`),
	)
}

// ProvideRegistry 构建注册表并注册 value group 中的处理器
func ProvideRegistry(p Params) (Output, error) {
	reg := NewRegistry()
	for _, r := range p.Registrations {
		if err := reg.Register(r.ID, r.Handler); err != nil {
			return Output{}, err
		}
	}
	return Output{
		Registry:   reg,
		Negotiator: NewNegotiator(reg, DefaultNegotiationTimeout),
	}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol",
		fx.Provide(ProvideRegistry),
	)
}
