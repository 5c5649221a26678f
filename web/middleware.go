package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/calllog/interception"
)

// HTTPTypeName 请求调用日志使用的类型名
const HTTPTypeName = "HTTP"

// RequestInput 记录的请求参数
type RequestInput struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	ClientIP string `json:"clientIp"`
}

// ResponseOutput 记录的响应
type ResponseOutput struct {
	Status int `json:"status"`
	Size   int `json:"size"`
}

// CallLogging 把每个请求作为一次调用交给拦截器
// 方法名由请求方法与路由模板组成，例如 GET_calllog_stats；
// 5xx 或处理器附加的错误记为失败调用
func CallLogging(resolve func() *interception.Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		i := resolve()
		if i == nil {
			c.Next()
			return
		}

		id := interception.NewMethod(HTTPTypeName, RouteMethod(c.Request.Method, c.FullPath()), "")
		call := i.Begin(id, RequestInput{
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Query:    c.Request.URL.RawQuery,
			ClientIP: c.ClientIP(),
		})

		c.Next()

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			err = errors.New(http.StatusText(status))
		}
		call.End(ResponseOutput{Status: c.Writer.Status(), Size: c.Writer.Size()}, err)
	}
}

// RouteMethod 把请求方法与路由模板转换为方法名
// 未匹配任何路由时为 <METHOD>_unmatched
func RouteMethod(method, route string) string {
	if route == "" {
		return method + "_unmatched"
	}
	route = strings.Trim(route, "/")
	if route == "" {
		return method + "_root"
	}
	r := strings.NewReplacer("/", "_", ":", "", "*", "", ".", "_")
	return method + "_" + r.Replace(route)
}
