package mesh

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ========================================
// 客户端拦截器 (Client Interceptor)
// ========================================

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 每次调用先经过编排器的决策管线，路由成功后将网格元数据写入
// outgoing metadata，调用结束时回写结果到熔断器。
//
// 参数:
//   - orch: 编排器实例
//   - serviceFunc: 从 fullMethod 中提取服务名的函数，如果为 nil，默认使用 gRPC 服务名
//
// 使用示例:
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithChainUnaryInterceptor(
//	        mesh.UnaryClientInterceptor(orch, nil),
//	    ),
//	)
func UnaryClientInterceptor(
	orch Orchestrator,
	serviceFunc func(fullMethod string) string,
) grpc.UnaryClientInterceptor {
	if serviceFunc == nil {
		serviceFunc = defaultServiceFunc
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		service := serviceFunc(method)

		result := orch.RouteRequest(ctx, service, &Request{Path: method}, "")
		switch result.Status {
		case StatusRouted:
			// 继续调用
		case StatusCircuitOpen:
			return status.Error(codes.Unavailable, ErrNotRouted.Error())
		case StatusRateLimited:
			return status.Error(codes.ResourceExhausted, ErrNotRouted.Error())
		default:
			return status.Error(codes.Unavailable, ErrNotRouted.Error())
		}

		// 将网格元数据注入 outgoing metadata
		ctx = metadata.AppendToOutgoingContext(ctx,
			HeaderRequestID, result.RequestID,
			HeaderTargetVersion, result.Version,
		)

		err := invoker(ctx, method, req, reply, cc, opts...)
		orch.RecordResult(ctx, service, result.RequestID, err == nil)
		return err
	}
}

// defaultServiceFunc 从 "/package.Service/Method" 中提取服务名
func defaultServiceFunc(fullMethod string) string {
	name := strings.TrimPrefix(fullMethod, "/")
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
