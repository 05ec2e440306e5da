package bridge

import (
	"context"
	"net"
	"net/rpc/jsonrpc"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ActionRelay applies a button press in agentgate.
type ActionRelay interface {
	HandleChannelAction(ctx context.Context, req domain.ChannelActionRequest) (*domain.ChannelActionResult, error)
}

// AgentGateClient relays actions to the agentgate JSON-RPC server.
type AgentGateClient struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
}

// NewAgentGateClient creates a client for the agentgate RPC server at addr.
func NewAgentGateClient(addr string) *AgentGateClient {
	return &AgentGateClient{
		addr:        addr,
		dialTimeout: 5 * time.Second,
		callTimeout: 30 * time.Second,
	}
}

// HandleChannelAction implements ActionRelay.
func (c *AgentGateClient) HandleChannelAction(ctx context.Context, req domain.ChannelActionRequest) (*domain.ChannelActionResult, error) {
	var resp domain.ChannelActionResult
	if err := c.call(ctx, "AgentGate.HandleChannelAction", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *AgentGateClient) call(ctx context.Context, method string, args, reply interface{}) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}
