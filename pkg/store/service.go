package store

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// storeServer adapts a *Store to the ResultStoreServer RPC surface. One
// instance backs the whole batch; it lives in the parent process only.
type storeServer struct {
	s *Store
}

func (h *storeServer) Put(_ context.Context, in *PutRequest) (*PutResponse, error) {
	h.s.Put(in.TaskName, in.Value)
	return &PutResponse{}, nil
}

func (h *storeServer) PutError(_ context.Context, in *PutErrorRequest) (*PutErrorResponse, error) {
	h.s.PutError(in.TaskName, ErrorRecord{Message: in.Message, Kind: in.Kind})
	return &PutErrorResponse{}, nil
}

func (h *storeServer) Get(_ context.Context, in *GetRequest) (*GetResponse, error) {
	v, ok := h.s.Get(in.TaskName)
	return &GetResponse{Value: v, Found: ok}, nil
}

func (h *storeServer) MarkTerminated(_ context.Context, _ *MarkTerminatedRequest) (*MarkTerminatedResponse, error) {
	h.s.MarkTerminated()
	return &MarkTerminatedResponse{}, nil
}

func (h *storeServer) GetMeta(_ context.Context, _ *GetMetaRequest) (*GetMetaResponse, error) {
	m := h.s.Meta()
	return &GetMetaResponse{NJobs: m.NJobs, NTasks: m.NTasks, Terminated: m.Terminated}, nil
}

// Server hosts a Store behind a gRPC listener bound to a Unix domain
// socket, per spec §4.E: "the parent never shares memory with children
// except via the Shared Result Store."
type Server struct {
	Store      *Store
	SocketPath string

	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer prepares (without starting) a Server for the batch identified
// by batchID, rooted under loggingFolder/.parexec/.
func NewServer(store *Store, loggingFolder, batchID string) *Server {
	sockDir := filepath.Join(loggingFolder, ".parexec")
	return &Server{
		Store:      store,
		SocketPath: filepath.Join(sockDir, batchID+".sock"),
	}
}

// Serve binds the Unix domain socket and starts serving in the
// background. Call Stop to tear it down.
func (srv *Server) Serve() error {
	if err := os.MkdirAll(filepath.Dir(srv.SocketPath), 0o755); err != nil {
		return fmt.Errorf("store: create socket dir: %w", err)
	}
	_ = os.Remove(srv.SocketPath) // stale socket from a crashed prior run

	lis, err := net.Listen("unix", srv.SocketPath)
	if err != nil {
		return fmt.Errorf("store: listen on %s: %w", srv.SocketPath, err)
	}
	srv.listener = lis

	srv.grpcServer = grpc.NewServer()
	srv.grpcServer.RegisterService(&ResultStore_ServiceDesc, &storeServer{s: srv.Store})

	go func() {
		_ = srv.grpcServer.Serve(lis)
	}()
	return nil
}

// Stop shuts the gRPC server down and removes the socket file, per spec
// §7's "on any exit path the Shared Result Store's backing manager is
// shut down" rule.
func (srv *Server) Stop() {
	if srv.grpcServer != nil {
		srv.grpcServer.GracefulStop()
	}
	_ = os.Remove(srv.SocketPath)
}

// Dial connects a ResultStoreClient to a Server's Unix domain socket.
// Used by child worker processes (pkg/executor/workermain.go); the parent
// reads and writes its in-memory Store directly.
func Dial(ctx context.Context, socketPath string) (ResultStoreClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("store: dial %s: %w", socketPath, err)
	}
	return NewResultStoreClient(conn), conn, nil
}
