package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
)

// Host Web 主机
type Host struct {
	addr            string
	engine          *gin.Engine
	server          *http.Server
	logger          logging.Logger
	container       di.Container
	controllerTypes []reflect.Type

	mu        sync.Mutex
	listening string
	ready     chan struct{}
}

// Address 实际监听地址，Start 之前为空
func (h *Host) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listening
}

// Ready 开始监听后关闭
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// Handler 返回已挂载控制器的处理器，测试中可直接配合 httptest 使用
func (h *Host) Handler() (http.Handler, error) {
	if err := h.mapControllers(); err != nil {
		return nil, err
	}
	return h.engine, nil
}

// Start 监听并阻塞到服务退出
func (h *Host) Start(ctx context.Context) error {
	if err := h.mapControllers(); err != nil {
		return fmt.Errorf("web: failed to map controllers: %w", err)
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", h.addr, err)
	}

	h.mu.Lock()
	h.listening = ln.Addr().String()
	h.mu.Unlock()
	close(h.ready)
	h.logger.Info("Web host started", logging.Field{Key: "address", Value: ln.Addr().String()})

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("Web host error", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

// Stop 优雅关闭
func (h *Host) Stop(ctx context.Context) error {
	h.logger.Info("Stopping web host")
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown web host gracefully", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

// mapControllers 从容器解析控制器并挂载，只执行一次
func (h *Host) mapControllers() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, typ := range h.controllerTypes {
		instance, err := h.container.Get(typ)
		if err != nil {
			return fmt.Errorf("failed to resolve controller %v: %w", typ, err)
		}
		ctrl, ok := instance.(Controller)
		if !ok {
			return fmt.Errorf("instance %v does not implement web.Controller", typ)
		}
		ctrl.MountRoutes(h.engine)
		h.logger.Debug("Mapped controller routes", logging.Field{Key: "controller", Value: typ.String()})
	}
	h.controllerTypes = nil
	return nil
}
