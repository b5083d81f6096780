package remoteexec

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/buildtool/buildtool/pkg/artifact"
)

type fakeServer struct {
	results map[string]*ActionResult
}

func (f *fakeServer) GetActionResult(ctx context.Context, req *GetActionResultRequest) (*GetActionResultResponse, error) {
	r, ok := f.results[req.ActionKey]
	return &GetActionResultResponse{Result: r, Found: ok}, nil
}

func (f *fakeServer) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	result := ActionResult{ActionKey: req.ActionKey, ExitCode: 0}
	f.results[req.ActionKey] = &result
	return &ExecuteResponse{Result: result}, nil
}

func (f *fakeServer) ReadBlob(ctx context.Context, req *ReadBlobRequest) (*ReadBlobResponse, error) {
	return &ReadBlobResponse{Found: false}, nil
}

func (f *fakeServer) WriteBlob(ctx context.Context, req *WriteBlobRequest) (*WriteBlobResponse, error) {
	return &WriteBlobResponse{Stored: true}, nil
}

func dialTestServer(t *testing.T, impl Server) *Client {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	RegisterServer(grpcServer, impl)
	go func() { _ = grpcServer.Serve(listener) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func TestGetActionResultReportsMissOnUnknownKey(t *testing.T) {
	client := dialTestServer(t, &fakeServer{results: make(map[string]*ActionResult)})

	resp, err := client.GetActionResult(context.Background(), &GetActionResultRequest{ActionKey: "missing"})
	require.NoError(t, err)
	require.False(t, resp.Found)
}

func TestExecuteThenGetActionResultRoundTrips(t *testing.T) {
	client := dialTestServer(t, &fakeServer{results: make(map[string]*ActionResult)})

	_, err := client.Execute(context.Background(), &ExecuteRequest{
		ActionKey: "abc",
		Mnemonic:  "CCompile",
		Argv:      []string{"/bin/cc", "a.c"},
	})
	require.NoError(t, err)

	resp, err := client.GetActionResult(context.Background(), &GetActionResultRequest{ActionKey: "abc"})
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.Equal(t, "abc", resp.Result.ActionKey)
}

func TestWriteBlobConfirmsStorage(t *testing.T) {
	client := dialTestServer(t, &fakeServer{results: make(map[string]*ActionResult)})

	resp, err := client.WriteBlob(context.Background(), &WriteBlobRequest{
		Digest:  artifact.Digest{HashFunc: "sha256", Hex: "abc", Size: 3},
		Content: []byte("abc"),
	})
	require.NoError(t, err)
	require.True(t, resp.Stored)
}
