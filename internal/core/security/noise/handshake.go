// Package noise 实现 Noise XX 安全通道
//
// 握手流程：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// 静态 DH 密钥由节点的 Ed25519 身份密钥转换而来；payload 中携带
// Ed25519 公钥与对 Curve25519 静态公钥的签名，把 DH 密钥绑定到身份：
//
//	message HandshakePayload {
//	  bytes identity_key = 1;  // Ed25519 公钥（32 字节）
//	  bytes identity_sig = 2;  // Sign("noise-comms-static-key:" || curve25519_static)
//	}
//
// 握手与传输阶段的每条消息都以 2 字节大端长度作为前缀。
package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"
	"google.golang.org/protobuf/encoding/protowire"
)

// payloadSigPrefix 签名前缀
const payloadSigPrefix = "noise-comms-static-key:"

const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// handshakeResult 握手结果
type handshakeResult struct {
	send      *noise.CipherState
	recv      *noise.CipherState
	remotePub ed25519.PublicKey
}

// performHandshake 执行 Noise XX 握手
func performHandshake(rw io.ReadWriter, priv ed25519.PrivateKey, initiator bool) (*handshakeResult, error) {
	curvePriv := ed25519ToCurve25519Private(priv)
	curvePub, err := ed25519ToCurve25519Public(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: noise.DHKey{Private: curvePriv, Public: curvePub},
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	localPayload := encodePayload(priv, curvePub)

	var (
		send, recv    *noise.CipherState
		remotePayload []byte
	)
	if initiator {
		send, recv, remotePayload, err = initiatorHandshake(rw, hs, localPayload)
	} else {
		send, recv, remotePayload, err = responderHandshake(rw, hs, localPayload)
	}
	if err != nil {
		return nil, err
	}

	remotePub, err := verifyPayload(remotePayload, hs.PeerStatic())
	if err != nil {
		return nil, err
	}

	return &handshakeResult{send: send, recv: recv, remotePub: remotePub}, nil
}

// initiatorHandshake 发起方三轮消息
func initiatorHandshake(rw io.ReadWriter, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(rw, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg2, err := readFrame(rw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: read message 2: %v", ErrInvalidHandshake, err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(rw, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}

	// 发起方：cs1 发送，cs2 接收
	return cs1, cs2, remotePayload, nil
}

// responderHandshake 响应方三轮消息
func responderHandshake(rw io.ReadWriter, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, err := readFrame(rw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: read message 1: %v", ErrInvalidHandshake, err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(rw, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg3, err := readFrame(rw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: read message 3: %v", ErrInvalidHandshake, err)
	}

	// 响应方：cs2 发送，cs1 接收
	return cs2, cs1, remotePayload, nil
}

// ============================================================================
//                              payload
// ============================================================================

func encodePayload(priv ed25519.PrivateKey, curvePub []byte) []byte {
	sig := ed25519.Sign(priv, append([]byte(payloadSigPrefix), curvePub...))

	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, priv.Public().(ed25519.PublicKey))
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, sig)
	return b
}

// verifyPayload 解析对端 payload，并校验其签名覆盖了握手中的静态公钥
func verifyPayload(payload, remoteStatic []byte) (ed25519.PublicKey, error) {
	var key, sig []byte
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidHandshake, protowire.ParseError(n))
		}
		payload = payload[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return nil, fmt.Errorf("%w: payload: %v", ErrInvalidHandshake, protowire.ParseError(n))
			}
			payload = payload[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(payload)
		if n < 0 {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidHandshake, protowire.ParseError(n))
		}
		switch num {
		case fieldIdentityKey:
			key = v
		case fieldIdentitySig:
			sig = v
		}
		payload = payload[n:]
	}

	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: identity key is %d bytes", ErrInvalidHandshake, len(key))
	}
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("%w: static key is %d bytes", ErrInvalidHandshake, len(remoteStatic))
	}

	pub := append(ed25519.PublicKey(nil), key...)
	if !ed25519.Verify(pub, append([]byte(payloadSigPrefix), remoteStatic...), sig) {
		return nil, fmt.Errorf("%w: static key not bound to identity key", ErrInvalidHandshake)
	}

	// 静态 DH 公钥必须正是身份公钥的转换结果
	expected, err := ed25519ToCurve25519Public(pub)
	if err != nil {
		return nil, err
	}
	if string(expected) != string(remoteStatic) {
		return nil, fmt.Errorf("%w: static key does not derive from identity key", ErrInvalidHandshake)
	}
	return pub, nil
}

// ============================================================================
//                              密钥转换
// ============================================================================

// ed25519ToCurve25519Private SHA-512(seed) 前 32 字节并 clamp（RFC 7748）
func ed25519ToCurve25519Private(priv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// ed25519ToCurve25519Public Edwards 点转 Montgomery u 坐标
func ed25519ToCurve25519Public(pub ed25519.PublicKey) ([]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key: %v", ErrInvalidHandshake, err)
	}
	return point.BytesMontgomery(), nil
}

// ============================================================================
//                              帧读写
// ============================================================================

// writeFrame 写入 2 字节长度前缀帧
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取 2 字节长度前缀帧
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
