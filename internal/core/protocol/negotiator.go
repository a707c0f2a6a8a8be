package protocol

import (
	"fmt"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// DefaultNegotiationTimeout 默认单条子流协商超时
const DefaultNegotiationTimeout = 10 * time.Second

// protocolSetter 可记录协商结果的子流（muxer/yamux.Stream）
type protocolSetter interface {
	SetProtocol(types.ProtocolID)
}

// ============================================================================
//                              Negotiator
// ============================================================================

// Negotiator 基于 multistream-select 的子流协议协商器
//
// 入站：对端提议协议，本端以注册表中的协议列表应答；
// 出站：本端提议协议，对端不支持时返回错误。
type Negotiator struct {
	registry *Registry
	timeout  time.Duration
}

// NewNegotiator 创建协商器，timeout <= 0 时使用默认值
func NewNegotiator(registry *Registry, timeout time.Duration) *Negotiator {
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	return &Negotiator{registry: registry, timeout: timeout}
}

// Registry 返回底层注册表
func (n *Negotiator) Registry() *Registry {
	return n.registry
}

// Negotiate 作为响应方协商入站子流
func (n *Negotiator) Negotiate(s interfaces.Substream) (types.ProtocolID, error) {
	protocols := n.registry.Protocols()
	if len(protocols) == 0 {
		return "", ErrNoProtocols
	}

	mux := mss.NewMultistreamMuxer[types.ProtocolID]()
	for _, p := range protocols {
		mux.AddHandler(p, nil)
	}

	_ = s.SetDeadline(time.Now().Add(n.timeout))
	defer func() { _ = s.SetDeadline(time.Time{}) }()

	proto, _, err := mux.Negotiate(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	markProtocol(s, proto)
	return proto, nil
}

// Select 作为发起方协商出站子流
func (n *Negotiator) Select(s interfaces.Substream, id types.ProtocolID) error {
	if !id.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidProtocolID, id)
	}

	_ = s.SetDeadline(time.Now().Add(n.timeout))
	defer func() { _ = s.SetDeadline(time.Time{}) }()

	if err := mss.SelectProtoOrFail(id, s); err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	markProtocol(s, id)
	return nil
}

// SelectOneOf 依次提议多个协议，返回对端接受的第一个
func (n *Negotiator) SelectOneOf(s interfaces.Substream, ids []types.ProtocolID) (types.ProtocolID, error) {
	if len(ids) == 0 {
		return "", ErrNoProtocols
	}

	_ = s.SetDeadline(time.Now().Add(n.timeout))
	defer func() { _ = s.SetDeadline(time.Time{}) }()

	proto, err := mss.SelectOneOf(ids, s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	markProtocol(s, proto)
	return proto, nil
}

func markProtocol(s interfaces.Substream, p types.ProtocolID) {
	if ps, ok := s.(protocolSetter); ok {
		ps.SetProtocol(p)
	}
}
