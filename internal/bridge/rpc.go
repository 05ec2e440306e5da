package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/notify"
)

// RPCServer exposes the Bridge JSON-RPC endpoints agentgate posts to.
type RPCServer struct {
	mu        sync.Mutex
	listener  net.Listener
	closed    bool
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}
}

// NewRPCServer creates a bridge RPC server. Messages without a channel are
// posted to defaultChannel.
func NewRPCServer(h *Hub, defaultChannel string, logger *zap.Logger) (*RPCServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "bridge_rpc"))

	rpcServer := rpc.NewServer()
	handler := &RPCHandler{hub: h, defaultChannel: defaultChannel, logger: logger, now: time.Now}
	if err := rpcServer.RegisterName("Bridge", handler); err != nil {
		return nil, fmt.Errorf("register bridge handler: %w", err)
	}

	return &RPCServer{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Serve accepts connections on ln until it is closed.
func (s *RPCServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(s.done)
		return ln.Close()
	}
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", zap.Error(err))
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RPCHandler implements the Bridge RPC methods.
type RPCHandler struct {
	hub            *Hub
	defaultChannel string
	logger         *zap.Logger
	now            func() time.Time
}

// PostAgentMessage posts a message to its channel and returns the reference
// clients quote when they press one of its buttons. A channel nobody is
// subscribed to still accepts the post.
func (h *RPCHandler) PostAgentMessage(req *notify.PostRequest, resp *notify.PostResponse) error {
	if req == nil {
		return errors.New("post request is required")
	}
	msg := req.Message
	if strings.TrimSpace(msg.Content) == "" {
		resp.Error = "content is required"
		return nil
	}
	channel := msg.ChannelRef
	if channel == "" {
		channel = h.defaultChannel
	}
	if channel == "" {
		resp.Error = "channel_ref is required"
		return nil
	}

	ref := channel + ":" + uuid.New().String()
	event := AgentMessageEvent{
		BaseMessage: BaseMessage{Type: TypeAgentMessage, Ts: h.now().UnixMilli()},
		MessageRef:  ref,
		Channel:     channel,
		Message:     msg,
		Actions:     actionsFor(msg.MessageType),
	}
	delivered, err := h.hub.BroadcastJSON(channel, event)
	if err != nil {
		return err
	}

	h.logger.Info("agent message posted",
		zap.String("channel", channel), zap.String("message_ref", ref),
		zap.String("type", string(msg.MessageType)), zap.Int("subscribers", delivered))

	resp.OK = true
	resp.MessageRef = ref
	return nil
}
