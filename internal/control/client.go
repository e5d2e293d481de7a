package control

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lambda-feedback/agenthost/internal/host"
)

// Client talks to a running host over its control socket.
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, config Config) (*Client, error) {
	client, err := rpc.DialIPC(ctx, config.EndpointOrDefault())
	if err != nil {
		return nil, fmt.Errorf("failed to dial control socket: %w", err)
	}

	return &Client{rpc: client}, nil
}

func (c *Client) Restart(ctx context.Context) (host.Status, error) {
	var status host.Status
	if err := c.rpc.CallContext(ctx, &status, Namespace+"_restart"); err != nil {
		return status, err
	}
	return status, nil
}

func (c *Client) Status(ctx context.Context) (host.Status, error) {
	var status host.Status
	if err := c.rpc.CallContext(ctx, &status, Namespace+"_status"); err != nil {
		return status, err
	}
	return status, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}
