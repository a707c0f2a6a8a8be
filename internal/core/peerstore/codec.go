package peerstore

import (
	"crypto/ed25519"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-comms/pkg/types"
)

// ============================================================================
//                              持久化记录编码
// ============================================================================

// 记录使用 protobuf 线格式：
//
//	message PeerRecord {
//	  bytes  public_key        = 1;
//	  repeated Address addrs   = 2;
//	  uint64 features          = 3;
//	  uint32 flags             = 4;
//	  string user_agent        = 5;
//	  repeated string protocols = 6;
//	  int64  added_at          = 7;  // unix 纳秒，0 表示未知
//	  int64  last_connected_at = 8;
//	}
//	message Address {
//	  bytes  addr            = 1;
//	  int64  last_seen       = 2;
//	  int64  last_success    = 3;
//	  uint32 failed_attempts = 4;
//	}

const (
	fieldPublicKey       protowire.Number = 1
	fieldAddress         protowire.Number = 2
	fieldFeatures        protowire.Number = 3
	fieldFlags           protowire.Number = 4
	fieldUserAgent       protowire.Number = 5
	fieldProtocol        protowire.Number = 6
	fieldAddedAt         protowire.Number = 7
	fieldLastConnectedAt protowire.Number = 8

	fieldAddrBytes       protowire.Number = 1
	fieldAddrLastSeen    protowire.Number = 2
	fieldAddrLastSuccess protowire.Number = 3
	fieldAddrFailed      protowire.Number = 4
)

func encodeTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func decodeTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v))
}

// encodePeer 编码节点记录
func encodePeer(p *types.Peer) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPublicKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.PublicKey)

	for _, pa := range p.Addresses {
		var ab []byte
		ab = protowire.AppendTag(ab, fieldAddrBytes, protowire.BytesType)
		ab = protowire.AppendBytes(ab, pa.Addr.Bytes())
		ab = protowire.AppendTag(ab, fieldAddrLastSeen, protowire.VarintType)
		ab = protowire.AppendVarint(ab, encodeTime(pa.LastSeen))
		ab = protowire.AppendTag(ab, fieldAddrLastSuccess, protowire.VarintType)
		ab = protowire.AppendVarint(ab, encodeTime(pa.LastSuccess))
		ab = protowire.AppendTag(ab, fieldAddrFailed, protowire.VarintType)
		ab = protowire.AppendVarint(ab, uint64(pa.FailedAttempts))

		b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
		b = protowire.AppendBytes(b, ab)
	}

	b = protowire.AppendTag(b, fieldFeatures, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Features))
	b = protowire.AppendTag(b, fieldFlags, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Flags))

	if p.UserAgent != "" {
		b = protowire.AppendTag(b, fieldUserAgent, protowire.BytesType)
		b = protowire.AppendString(b, p.UserAgent)
	}
	for _, proto := range p.SupportedProtocols {
		b = protowire.AppendTag(b, fieldProtocol, protowire.BytesType)
		b = protowire.AppendString(b, string(proto))
	}

	b = protowire.AppendTag(b, fieldAddedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, encodeTime(p.AddedAt))
	b = protowire.AppendTag(b, fieldLastConnectedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, encodeTime(p.LastConnectedAt))
	return b
}

// decodePeer 解码节点记录
func decodePeer(b []byte) (*types.Peer, error) {
	p := &types.Peer{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldPublicKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			if len(v) != ed25519.PublicKeySize {
				return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidRecord, len(v))
			}
			p.PublicKey = append(ed25519.PublicKey(nil), v...)
			b = b[n:]

		case num == fieldAddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			pa, err := decodeAddress(v)
			if err != nil {
				return nil, err
			}
			p.Addresses = append(p.Addresses, pa)
			b = b[n:]

		case num == fieldUserAgent && typ == protowire.BytesType,
			num == fieldProtocol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			if num == fieldUserAgent {
				p.UserAgent = v
			} else {
				p.SupportedProtocols = append(p.SupportedProtocols, types.ProtocolID(v))
			}
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			switch num {
			case fieldFeatures:
				p.Features = types.PeerFeatures(v)
			case fieldFlags:
				p.Flags = types.PeerFlags(v)
			case fieldAddedAt:
				p.AddedAt = decodeTime(v)
			case fieldLastConnectedAt:
				p.LastConnectedAt = decodeTime(v)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if p.PublicKey == nil {
		return nil, fmt.Errorf("%w: missing public key", ErrInvalidRecord)
	}
	p.NodeID = types.NodeIDFromPublicKey(p.PublicKey)
	return p, nil
}

func decodeAddress(b []byte) (*types.PeerAddress, error) {
	pa := &types.PeerAddress{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldAddrBytes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			addr, err := ma.NewMultiaddrBytes(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
			}
			pa.Addr = addr
			b = b[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			switch num {
			case fieldAddrLastSeen:
				pa.LastSeen = decodeTime(v)
			case fieldAddrLastSuccess:
				pa.LastSuccess = decodeTime(v)
			case fieldAddrFailed:
				pa.FailedAttempts = uint32(v)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if pa.Addr == nil {
		return nil, fmt.Errorf("%w: address without multiaddr", ErrInvalidRecord)
	}
	return pa, nil
}
