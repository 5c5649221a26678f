package logging

// NewLogger 创建一个默认的控制台 Logger（便于测试使用）
func NewLogger() Logger {
	return NewLoggingBuilder().AddConsole().Build().CreateLogger("default")
}

// NewNopLogger 创建一个丢弃所有输出的 Logger
func NewNopLogger() Logger {
	return NewCompositeLogger(nil, LogLevelOff, "nop")
}
