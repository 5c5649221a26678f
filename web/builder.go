package web

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/calllog/di"
	"github.com/gocrud/calllog/logging"
)

// Controller 控制器接口
type Controller interface {
	// MountRoutes 注册路由
	MountRoutes(router gin.IRouter)
}

// Builder Web 主机构建器（基于 Gin）
type Builder struct {
	logger          logging.Logger
	addr            string
	engine          *gin.Engine
	controllers     []any
	controllerTypes []reflect.Type
	callLogging     bool
}

// NewBuilder 创建 Web 构建器，默认监听 :8080
func NewBuilder() *Builder {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Builder{
		addr:   ":8080",
		engine: engine,
	}
}

// UseLogger 设置日志记录器
func (b *Builder) UseLogger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// UsePort 设置端口，0 表示随机端口
func (b *Builder) UsePort(port int) *Builder {
	b.addr = fmt.Sprintf(":%d", port)
	return b
}

// UseAddr 设置完整监听地址
func (b *Builder) UseAddr(addr string) *Builder {
	b.addr = addr
	return b
}

// Use 使用全局中间件
func (b *Builder) Use(middleware ...gin.HandlerFunc) *Builder {
	b.engine.Use(middleware...)
	return b
}

// AddControllers 注册控制器
// 可以是构造函数（构造函数注入）或结构体指针（di 标签字段注入），
// Host 启动时从容器解析并挂载路由
func (b *Builder) AddControllers(controllers ...any) *Builder {
	b.controllers = append(b.controllers, controllers...)
	return b
}

// Get 注册 GET 路由
func (b *Builder) Get(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.GET(path, handlers...)
	return b
}

// Post 注册 POST 路由
func (b *Builder) Post(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.POST(path, handlers...)
	return b
}

// Group 创建路由组
func (b *Builder) Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return b.engine.Group(relativePath, handlers...)
}

// NoRoute 处理 404
func (b *Builder) NoRoute(handlers ...gin.HandlerFunc) *Builder {
	b.engine.NoRoute(handlers...)
	return b
}

// Engine 获取 Gin 引擎
func (b *Builder) Engine() *gin.Engine {
	return b.engine
}

// RegisterServices 把控制器注册到容器，必须在容器 Build 之前调用
func (b *Builder) RegisterServices(container di.Container) error {
	for _, item := range b.controllers {
		serviceType, err := di.Provide(container, item)
		if err != nil {
			return fmt.Errorf("web: failed to register controller %T: %w", item, err)
		}
		b.controllerTypes = append(b.controllerTypes, serviceType)
	}
	return nil
}

// Build 构建 Web 主机，container 用于解析控制器
func (b *Builder) Build(container di.Container) *Host {
	logger := b.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Host{
		addr:            b.addr,
		engine:          b.engine,
		container:       container,
		controllerTypes: b.controllerTypes,
		server:          &http.Server{Handler: b.engine},
		logger:          logger,
		ready:           make(chan struct{}),
	}
}
