package remoteexec

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a grpc.ClientConn dialed to a remote
// cache/execution service, invoking each RPC with the package's JSON codec
// selected as the call's content subtype.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection. Dialing (target address,
// transport credentials, retry policy) is the caller's concern; this
// package only owns the RPC contract spoken over it.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetActionResult(ctx context.Context, req *GetActionResultRequest) (*GetActionResultResponse, error) {
	resp := new(GetActionResultResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetActionResult"), req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	resp := new(ExecuteResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Execute"), req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ReadBlob(ctx context.Context, req *ReadBlobRequest) (*ReadBlobResponse, error) {
	resp := new(ReadBlobResponse)
	if err := c.conn.Invoke(ctx, fullMethod("ReadBlob"), req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) WriteBlob(ctx context.Context, req *WriteBlobRequest) (*WriteBlobResponse, error) {
	resp := new(WriteBlobResponse)
	if err := c.conn.Invoke(ctx, fullMethod("WriteBlob"), req, resp, callOpts()...); err != nil {
		return nil, err
	}
	return resp, nil
}

func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(codecName)}
}

var _ Server = (*Client)(nil)
