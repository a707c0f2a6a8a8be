// Package identify 实现握手之后的协议识别
//
// 加密通道建立后，双方各发送一条 PeerIdentity 消息并读取对端的消息，
// 交换网络、公开地址、特性、客户端标识和支持的协议列表。
// 网络不一致或消息格式错误时连接失败。
//
// 线格式为 varint 长度前缀加 protobuf 线格式正文：
//
//	message PeerIdentity {
//	  uint32 network            = 1;
//	  repeated bytes addresses  = 2;  // multiaddr 二进制
//	  uint64 features           = 3;
//	  string user_agent         = 4;
//	  repeated string protocols = 5;
//	}
package identify

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-comms/pkg/types"
)

// MaxMessageSize 身份消息正文上限
const MaxMessageSize = 16 * 1024

const (
	fieldNetwork   protowire.Number = 1
	fieldAddress   protowire.Number = 2
	fieldFeatures  protowire.Number = 3
	fieldUserAgent protowire.Number = 4
	fieldProtocol  protowire.Number = 5
)

// PeerIdentity 协议识别阶段交换的节点信息
type PeerIdentity struct {
	Network   types.Network
	Addresses []ma.Multiaddr
	Features  types.PeerFeatures
	UserAgent string
	Protocols []types.ProtocolID
}

// Marshal 编码为 protobuf 线格式
func (pi *PeerIdentity) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldNetwork, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pi.Network))
	for _, a := range pi.Addresses {
		if a == nil {
			continue
		}
		b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Bytes())
	}
	b = protowire.AppendTag(b, fieldFeatures, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pi.Features))
	if pi.UserAgent != "" {
		b = protowire.AppendTag(b, fieldUserAgent, protowire.BytesType)
		b = protowire.AppendString(b, pi.UserAgent)
	}
	for _, p := range pi.Protocols {
		b = protowire.AppendTag(b, fieldProtocol, protowire.BytesType)
		b = protowire.AppendString(b, string(p))
	}
	return b
}

// Unmarshal 解码 protobuf 线格式，未知字段被忽略
func Unmarshal(b []byte) (*PeerIdentity, error) {
	pi := &PeerIdentity{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldNetwork && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			if v > 0xff {
				return nil, fmt.Errorf("%w: network %d out of range", ErrInvalidMessage, v)
			}
			pi.Network = types.Network(v)
			b = b[n:]

		case num == fieldFeatures && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			pi.Features = types.PeerFeatures(v)
			b = b[n:]

		case num == fieldAddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			addr, err := ma.NewMultiaddrBytes(v)
			if err != nil {
				return nil, fmt.Errorf("%w: address: %v", ErrInvalidMessage, err)
			}
			pi.Addresses = append(pi.Addresses, addr)
			b = b[n:]

		case num == fieldUserAgent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			pi.UserAgent = v
			b = b[n:]

		case num == fieldProtocol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			if p := types.ProtocolID(v); p.IsValid() {
				pi.Protocols = append(pi.Protocols, p)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return pi, nil
}
