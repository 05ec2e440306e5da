package notify

import (
	"context"
	"fmt"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"go.uber.org/zap"
)

// RPCNotifier forwards agent messages to an external chat bridge over JSON-RPC.
type RPCNotifier struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewRPCNotifier(baseURL string, logger *zap.Logger) *RPCNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCNotifier{
		addr:        resolveRPCAddr(baseURL),
		dialTimeout: 5 * time.Second,
		callTimeout: 5 * time.Second,
		logger:      logger.With(zap.String("component", "rpc_notifier")),
	}
}

// PostRequest is the argument of Bridge.PostAgentMessage.
type PostRequest struct {
	Message domain.AgentMessage `json:"message"`
}

// PostResponse is the reply of Bridge.PostAgentMessage.
type PostResponse struct {
	OK         bool   `json:"ok"`
	MessageRef string `json:"message_ref"`
	Error      string `json:"error,omitempty"`
}

// PostAgentMessage implements Notifier.
func (c *RPCNotifier) PostAgentMessage(ctx context.Context, msg domain.AgentMessage) (string, error) {
	if c.addr == "" {
		return "", ErrDisabled
	}

	var resp PostResponse
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.call(callCtx, "Bridge.PostAgentMessage", &PostRequest{Message: msg}, &resp); err != nil {
		return "", fmt.Errorf("failed to post message to bridge: %w", err)
	}
	if !resp.OK {
		c.logger.Warn("bridge rpc returned ok=false",
			zap.String("channel", msg.ChannelRef), zap.String("error", resp.Error))
		return "", fmt.Errorf("bridge rejected message: %s", resp.Error)
	}
	return resp.MessageRef, nil
}

func (c *RPCNotifier) call(ctx context.Context, method string, args, reply interface{}) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
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

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
