package connmgr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/multiformats/go-varint"
)

// ============================================================================
//                              存活检测会话
// ============================================================================

const (
	// MaxLivenessFrameSize 单个存活检测帧的最大长度
	MaxLivenessFrameSize = 1024

	// LivenessIdleTimeout 存活检测会话的空闲超时
	LivenessIdleTimeout = 30 * time.Second
)

// ErrLivenessFrameTooLarge 存活检测帧超长
var ErrLivenessFrameTooLarge = errors.New("liveness frame too large")

// livenessTracker 所有监听器共享的会话计数
type livenessTracker struct {
	max     int64
	active  atomic.Int64
	metrics *Metrics
}

func newLivenessTracker(limit int, metrics *Metrics) *livenessTracker {
	return &livenessTracker{max: int64(limit), metrics: metrics}
}

// enabled 是否允许存活检测
func (t *livenessTracker) enabled() bool {
	return t.max > 0
}

// hasCapacity 是否还有空闲会话名额
//
// 只作接受前的预检，真正占用名额仍由 tryAcquire 完成。
func (t *livenessTracker) hasCapacity() bool {
	return t.enabled() && t.active.Load() < t.max
}

// tryAcquire 占用一个会话名额
func (t *livenessTracker) tryAcquire() bool {
	for {
		cur := t.active.Load()
		if cur >= t.max {
			return false
		}
		if t.active.CompareAndSwap(cur, cur+1) {
			t.metrics.livenessSessions.Inc()
			return true
		}
	}
}

func (t *livenessTracker) release() {
	t.active.Add(-1)
	t.metrics.livenessSessions.Dec()
}

// Active 当前会话数
func (t *livenessTracker) Active() int {
	return int(t.active.Load())
}

// livenessSession 回显会话：读取 varint 长度前缀的帧并原样写回
type livenessSession struct {
	id   uuid.UUID
	conn net.Conn
	idle time.Duration
}

func newLivenessSession(conn net.Conn, idle time.Duration) *livenessSession {
	return &livenessSession{id: uuid.New(), conn: conn, idle: idle}
}

// run 运行直到出错、对端关闭或 ctx 结束
func (s *livenessSession) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	logger.Debug("存活检测会话开始", "session", s.id, "remote", s.conn.RemoteAddr())

	r := bufio.NewReader(s.conn)
	buf := make([]byte, MaxLivenessFrameSize)
	var frames int
	for {
		_ = s.conn.SetDeadline(time.Now().Add(s.idle))

		n, err := varint.ReadUvarint(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("存活检测会话结束", "session", s.id, "frames", frames)
				return nil
			}
			return s.closeErr(ctx, err)
		}
		if n > MaxLivenessFrameSize {
			return fmt.Errorf("%w: %d", ErrLivenessFrameTooLarge, n)
		}

		frame := buf[:n]
		if _, err := io.ReadFull(r, frame); err != nil {
			return s.closeErr(ctx, err)
		}
		if _, err := s.conn.Write(append(varint.ToUvarint(n), frame...)); err != nil {
			return s.closeErr(ctx, err)
		}
		frames++
	}
}

func (s *livenessSession) closeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("liveness session %s: %w", s.id, err)
}
