package main

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-comms/pkg/types"
)

// dialTarget -dial 参数：<base58 公钥>@<multiaddr>
type dialTarget struct {
	PublicKey ed25519.PublicKey
	Addr      ma.Multiaddr
}

// parseDialTarget 解析 pubkey@multiaddr
func parseDialTarget(s string) (dialTarget, error) {
	key, addr, ok := strings.Cut(s, "@")
	if !ok || key == "" || addr == "" {
		return dialTarget{}, fmt.Errorf("dial target %q: expected <public-key>@<multiaddr>", s)
	}
	pub, err := types.ParsePublicKey(key)
	if err != nil {
		return dialTarget{}, fmt.Errorf("dial target %q: %w", s, err)
	}
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return dialTarget{}, fmt.Errorf("dial target %q: %w", s, err)
	}
	return dialTarget{PublicKey: pub, Addr: m}, nil
}

// dialFlags 可重复的 -dial 参数
type dialFlags []dialTarget

func (d *dialFlags) String() string {
	parts := make([]string, 0, len(*d))
	for _, t := range *d {
		parts = append(parts, types.EncodePublicKey(t.PublicKey)+"@"+t.Addr.String())
	}
	return strings.Join(parts, ",")
}

func (d *dialFlags) Set(s string) error {
	t, err := parseDialTarget(s)
	if err != nil {
		return err
	}
	*d = append(*d, t)
	return nil
}
