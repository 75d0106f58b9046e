package store

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content-subtype the Shared Result Store's service
// registers under. The pack ships no .proto/protoc toolchain, so rather
// than hand-writing generated-looking .pb.go stubs this registers a plain
// JSON encoding.Codec and selects it per-call via
// grpc.CallContentSubtype — the wire messages below are ordinary Go
// structs, not proto.Message implementations.
const jsonCodecName = "parexec-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Wire messages. Plain structs standing in for what protoc-gen-go would
// generate from a .proto file describing the same service.

type PutRequest struct {
	TaskName string
	Value    any
}
type PutResponse struct{}

type PutErrorRequest struct {
	TaskName string
	Message  string
	Kind     string
}
type PutErrorResponse struct{}

type GetRequest struct {
	TaskName string
}
type GetResponse struct {
	Value any
	Found bool
}

type MarkTerminatedRequest struct{}
type MarkTerminatedResponse struct{}

type GetMetaRequest struct{}
type GetMetaResponse struct {
	NJobs      int
	NTasks     int
	Terminated bool
}

// ResultStoreServer is the service interface the parent process
// implements (service.go's storeServer).
type ResultStoreServer interface {
	Put(context.Context, *PutRequest) (*PutResponse, error)
	PutError(context.Context, *PutErrorRequest) (*PutErrorResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	MarkTerminated(context.Context, *MarkTerminatedRequest) (*MarkTerminatedResponse, error)
	GetMeta(context.Context, *GetMetaRequest) (*GetMetaResponse, error)
}

func _ResultStore_Put_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultStoreServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/parexec.store.v1.ResultStore/Put"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultStoreServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResultStore_PutError_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutErrorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultStoreServer).PutError(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/parexec.store.v1.ResultStore/PutError"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultStoreServer).PutError(ctx, req.(*PutErrorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResultStore_Get_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultStoreServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/parexec.store.v1.ResultStore/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultStoreServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResultStore_MarkTerminated_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MarkTerminatedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultStoreServer).MarkTerminated(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/parexec.store.v1.ResultStore/MarkTerminated"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultStoreServer).MarkTerminated(ctx, req.(*MarkTerminatedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ResultStore_GetMeta_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMetaRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultStoreServer).GetMeta(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/parexec.store.v1.ResultStore/GetMeta"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultStoreServer).GetMeta(ctx, req.(*GetMetaRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ResultStore_ServiceDesc is the hand-authored equivalent of what
// protoc-gen-go-grpc emits into a _grpc.pb.go file.
var ResultStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "parexec.store.v1.ResultStore",
	HandlerType: (*ResultStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: _ResultStore_Put_Handler},
		{MethodName: "PutError", Handler: _ResultStore_PutError_Handler},
		{MethodName: "Get", Handler: _ResultStore_Get_Handler},
		{MethodName: "MarkTerminated", Handler: _ResultStore_MarkTerminated_Handler},
		{MethodName: "GetMeta", Handler: _ResultStore_GetMeta_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/store/rpc.go",
}

// ResultStoreClient mirrors the generated *ServiceClient interfaces the
// teacher dials in pkg/router/registry.go.
type ResultStoreClient interface {
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error)
	PutError(ctx context.Context, in *PutErrorRequest, opts ...grpc.CallOption) (*PutErrorResponse, error)
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	MarkTerminated(ctx context.Context, in *MarkTerminatedRequest, opts ...grpc.CallOption) (*MarkTerminatedResponse, error)
	GetMeta(ctx context.Context, in *GetMetaRequest, opts ...grpc.CallOption) (*GetMetaResponse, error)
}

type resultStoreClient struct {
	cc grpc.ClientConnInterface
}

// NewResultStoreClient wraps a connection dialed against the parent's
// Unix-domain-socket listener (service.go's Serve).
func NewResultStoreClient(cc grpc.ClientConnInterface) ResultStoreClient {
	return &resultStoreClient{cc: cc}
}

func (c *resultStoreClient) call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(jsonCodecName))
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *resultStoreClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	if err := c.call(ctx, "/parexec.store.v1.ResultStore/Put", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultStoreClient) PutError(ctx context.Context, in *PutErrorRequest, opts ...grpc.CallOption) (*PutErrorResponse, error) {
	out := new(PutErrorResponse)
	if err := c.call(ctx, "/parexec.store.v1.ResultStore/PutError", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultStoreClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.call(ctx, "/parexec.store.v1.ResultStore/Get", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultStoreClient) MarkTerminated(ctx context.Context, in *MarkTerminatedRequest, opts ...grpc.CallOption) (*MarkTerminatedResponse, error) {
	out := new(MarkTerminatedResponse)
	if err := c.call(ctx, "/parexec.store.v1.ResultStore/MarkTerminated", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultStoreClient) GetMeta(ctx context.Context, in *GetMetaRequest, opts ...grpc.CallOption) (*GetMetaResponse, error) {
	out := new(GetMetaResponse)
	if err := c.call(ctx, "/parexec.store.v1.ResultStore/GetMeta", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
