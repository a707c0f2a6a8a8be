package interfaces

import "time"

// BackoffPolicy 拨号退避策略
type BackoffPolicy interface {
	// NextDelay 返回第 attempt 次尝试失败后、下一次尝试前的等待时间
	//
	// attempt 从 1 开始。
	NextDelay(attempt int) time.Duration
}
