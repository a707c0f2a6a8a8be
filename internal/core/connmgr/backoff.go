package connmgr

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dep2p/go-comms/config"
	"github.com/dep2p/go-comms/pkg/interfaces"
)

// ============================================================================
//                              退避策略
// ============================================================================

// ExponentialBackoff 指数退避
//
// 第 n 次失败后的等待时间为 Base * 2^(n-1)，不超过 Max，
// 再加上 [0, Jitter) 的随机抖动。
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

var _ interfaces.BackoffPolicy = ExponentialBackoff{}

// NextDelay 返回下一次尝试前的等待时间
func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 || b.Base <= 0 {
		return b.jitter()
	}

	d := b.Base
	for i := 1; i < attempt && d < math.MaxInt64/2; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d + b.jitter()
}

func (b ExponentialBackoff) jitter() time.Duration {
	if b.Jitter <= 0 {
		return 0
	}
	return rand.N(b.Jitter)
}

// ConstantBackoff 固定退避
type ConstantBackoff struct {
	Delay time.Duration
}

var _ interfaces.BackoffPolicy = ConstantBackoff{}

// NextDelay 始终返回 Delay
func (b ConstantBackoff) NextDelay(int) time.Duration {
	return b.Delay
}

// NoBackoff 不等待
type NoBackoff struct{}

var _ interfaces.BackoffPolicy = NoBackoff{}

// NextDelay 始终返回 0
func (NoBackoff) NextDelay(int) time.Duration {
	return 0
}

// BackoffFromConfig 根据配置创建退避策略
func BackoffFromConfig(cfg config.BackoffConfig) (interfaces.BackoffPolicy, error) {
	switch cfg.Kind {
	case "", "exponential":
		return ExponentialBackoff{
			Base:   cfg.Base.Duration(),
			Max:    cfg.Max.Duration(),
			Jitter: cfg.Jitter.Duration(),
		}, nil
	case "constant":
		return ConstantBackoff{Delay: cfg.Base.Duration()}, nil
	case "none":
		return NoBackoff{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backoff kind %q", ErrInvalidConfig, cfg.Kind)
	}
}
