package eventbus

// DefaultBufferSize 默认订阅缓冲区大小
const DefaultBufferSize = 32

type settings struct {
	bufferSize int
	name       string
}

// Option 广播器选项
type Option func(*settings)

// WithBufferSize 设置每个订阅者的缓冲区大小
func WithBufferSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

// WithName 设置日志中的广播器名称
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}
