package mesh

import "context"

// 边车拦截器注入的请求头
const (
	// HeaderRequestID 请求唯一标识
	HeaderRequestID = "x-mesh-request-id"

	// HeaderTargetVersion 流量规则选定的目标版本
	HeaderTargetVersion = "x-mesh-target-version"

	// HeaderMTLS mTLS 标记，enabled / disabled
	HeaderMTLS = "x-mesh-mtls"
)

// Interceptor 代理拦截边界
// 在实例选定之后、超时登记之前被调用，可向请求头注入条目。
// 拦截器返回的错误只会被记录，不会中断路由管线。
type Interceptor interface {
	Intercept(ctx context.Context, service, version string, req *Request) error
}

// SidecarInterceptor 默认的边车拦截器
// 注入请求标识与目标版本头，并按配置标记 mTLS。
// 真实的证书协商发生在数据面，这里只维护标记。
type SidecarInterceptor struct {
	mtls bool
}

// NewSidecarInterceptor 创建边车拦截器
func NewSidecarInterceptor(mtlsEnabled bool) *SidecarInterceptor {
	return &SidecarInterceptor{mtls: mtlsEnabled}
}

// Intercept 向请求头注入网格元数据
func (s *SidecarInterceptor) Intercept(ctx context.Context, service, version string, req *Request) error {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}

	req.Headers[HeaderRequestID] = req.RequestID
	req.Headers[HeaderTargetVersion] = version
	if s.mtls {
		req.Headers[HeaderMTLS] = "enabled"
	} else {
		req.Headers[HeaderMTLS] = "disabled"
	}
	return nil
}
