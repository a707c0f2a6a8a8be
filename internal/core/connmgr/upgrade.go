package connmgr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/benbjohnson/clock"
	hyamux "github.com/hashicorp/yamux"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/internal/core/identify"
	"github.com/dep2p/go-comms/internal/core/identity"
	"github.com/dep2p/go-comms/internal/core/muxer/yamux"
	"github.com/dep2p/go-comms/internal/core/protocol"
	"github.com/dep2p/go-comms/internal/core/security/noise"
	"github.com/dep2p/go-comms/pkg/interfaces"
	"github.com/dep2p/go-comms/pkg/types"
)

// upgrader 将原始传输连接升级为 PeerConnection
//
//	线路字节 -> 安全握手 -> 协议识别 -> yamux
//
// 出站方写出线路字节；入站方的线路字节由监听器读取后再调用 upgradeInbound。
type upgrader struct {
	network    types.Network
	secure     interfaces.SecureChannel
	identity   *identity.Identity
	userAgent  string
	negotiator *protocol.Negotiator
	yamuxCfg   *hyamux.Config
	clock      clock.Clock
	metrics    *Metrics
}

// localIdentity 本端的协议识别消息
func (u *upgrader) localIdentity() *identify.PeerIdentity {
	return &identify.PeerIdentity{
		Network:   u.network,
		Addresses: u.identity.PublicAddresses(),
		Features:  u.identity.Features(),
		UserAgent: u.userAgent,
		Protocols: u.negotiator.Registry().Protocols(),
	}
}

// upgradeOutbound 升级出站连接
//
// 对端披露的公钥必须与目录中的记录一致，否则返回认证错误。
func (u *upgrader) upgradeOutbound(ctx context.Context, raw net.Conn, peer *types.Peer, addr ma.Multiaddr) (*PeerConnection, error) {
	start := u.clock.Now()

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetWriteDeadline(deadline)
	}
	if _, err := raw.Write([]byte{u.network.Byte()}); err != nil {
		return nil, fmt.Errorf("write wire byte: %w", err)
	}

	sc, err := u.secure.Handshake(ctx, raw, true, peer.PublicKey)
	if err != nil {
		return nil, err
	}
	if !peer.NodeID.MatchesPublicKey(sc.RemotePublicKey()) {
		return nil, fmt.Errorf("%w: expected %s", ErrPeerIdentityMismatch, peer.NodeID.ShortString())
	}

	remote, err := identify.Exchange(ctx, sc, u.localIdentity())
	if err != nil {
		return nil, err
	}

	mux, err := yamux.NewClient(sc, u.yamuxCfg)
	if err != nil {
		return nil, err
	}

	u.metrics.handshakeDuration.WithLabelValues(types.DirOutbound.String()).Observe(u.clock.Since(start).Seconds())
	return newPeerConnection(connParams{
		publicKey:   sc.RemotePublicKey(),
		direction:   types.DirOutbound,
		remoteAddr:  addr,
		established: u.clock.Now(),
		identity:    remote,
		muxer:       mux,
		negotiator:  u.negotiator,
	}), nil
}

// upgradeInbound 升级入站连接，调用前线路字节已被读取
func (u *upgrader) upgradeInbound(ctx context.Context, raw net.Conn, remoteAddr ma.Multiaddr) (*PeerConnection, error) {
	start := u.clock.Now()

	sc, err := u.secure.Handshake(ctx, raw, false, nil)
	if err != nil {
		return nil, err
	}

	remote, err := identify.Exchange(ctx, sc, u.localIdentity())
	if err != nil {
		return nil, err
	}

	mux, err := yamux.NewServer(sc, u.yamuxCfg)
	if err != nil {
		return nil, err
	}

	u.metrics.handshakeDuration.WithLabelValues(types.DirInbound.String()).Observe(u.clock.Since(start).Seconds())
	return newPeerConnection(connParams{
		publicKey:   sc.RemotePublicKey(),
		direction:   types.DirInbound,
		remoteAddr:  remoteAddr,
		established: u.clock.Now(),
		identity:    remote,
		muxer:       mux,
		negotiator:  u.negotiator,
	}), nil
}

// isAuthFailure 握手成功但身份不符
func isAuthFailure(err error) bool {
	return errors.Is(err, noise.ErrPublicKeyMismatch) || errors.Is(err, ErrPeerIdentityMismatch)
}
