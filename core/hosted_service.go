package core

import "github.com/gocrud/calllog/hosting"

// HostedService 定义了一个具有启动和停止生命周期的托管服务
// Start 在独立的 Goroutine 中调用，允许阻塞；返回 error 时触发应用关闭
type HostedService = hosting.HostedService
