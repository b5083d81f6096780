package remoteexec

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path every RPC below is registered under,
// standing in for a protoc-generated `.proto` package.path.Service name.
const serviceName = "buildtool.remoteexec.v1.RemoteExecution"

// Server is the remote cache/execution contract spec.md §6 names: action
// result lookup/store, remote execution, and blob read/write. A
// self-hosted remote cache implements this directly; this package's
// Client wraps a grpc.ClientConn speaking the same four RPCs.
type Server interface {
	GetActionResult(ctx context.Context, req *GetActionResultRequest) (*GetActionResultResponse, error)
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
	ReadBlob(ctx context.Context, req *ReadBlobRequest) (*ReadBlobResponse, error)
	WriteBlob(ctx context.Context, req *WriteBlobRequest) (*WriteBlobResponse, error)
}

// RegisterServer attaches impl's four RPCs to grpcServer under serviceDesc,
// the hand-written equivalent of a protoc-generated `RegisterXxxServer`.
func RegisterServer(grpcServer grpc.ServiceRegistrar, impl Server) {
	grpcServer.RegisterService(&serviceDesc, impl)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetActionResult", Handler: getActionResultHandler},
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "ReadBlob", Handler: readBlobHandler},
		{MethodName: "WriteBlob", Handler: writeBlobHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/remoteexec/service.go",
}

func getActionResultHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetActionResultRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetActionResult(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetActionResult")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).GetActionResult(ctx, req.(*GetActionResultRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ExecuteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Execute(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Execute")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func readBlobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReadBlobRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ReadBlob(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ReadBlob")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).ReadBlob(ctx, req.(*ReadBlobRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func writeBlobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(WriteBlobRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).WriteBlob(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("WriteBlob")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).WriteBlob(ctx, req.(*WriteBlobRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}
