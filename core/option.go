package core

import "github.com/gocrud/calllog/logging"

// Option 定义了修改 Runtime 状态的函数签名
// 这是框架唯一的扩展点
type Option func(rt *Runtime) error

// WithLogging 替换运行时日志配置
// configure 接收一个空的构建器，未添加任何提供者时回退到控制台
func WithLogging(configure func(b *logging.LoggingBuilder)) Option {
	return func(rt *Runtime) error {
		builder := logging.NewLoggingBuilder()
		configure(builder)
		if builder.ProviderCount() == 0 {
			builder.AddConsole()
		}
		rt.LoggerFactory = builder.Build()
		return nil
	}
}

// WithLoggerFactory 直接使用已有的日志工厂（测试中常配合 MemoryLoggerProvider）
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(rt *Runtime) error {
		rt.LoggerFactory = factory
		return nil
	}
}
