// Package rpc exposes the gating and handoff operations over JSON-RPC for
// co-located bots and schedulers.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/service"
)

// ServiceName is the receiver name clients call methods on, e.g. "AgentGate.CheckAutonomy".
const ServiceName = "AgentGate"

// Server exposes internal RPC endpoints.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	closed    bool
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the service.
func NewServer(svc *service.Service, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "rpc"))

	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc, logger: logger}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(s.done)
		return ln.Close()
	}
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", zap.String("addr", ln.Addr().String()))

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
func (s *Server) Shutdown(ctx context.Context) error {
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

// Handler implements the RPC methods.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// ApprovalDecisionArgs wraps approval IDs with the decision payload.
type ApprovalDecisionArgs struct {
	ApprovalID string                         `json:"approval_id"`
	Request    domain.ApprovalDecisionRequest `json:"request"`
}

// HandoffArgs identifies a handoff and the agent acting on it.
type HandoffArgs struct {
	HandoffID string `json:"handoff_id"`
	AgentID   string `json:"agent_id"`
	Reason    string `json:"reason,omitempty"`
}

// SweepResponse reports how many approvals were timed out.
type SweepResponse struct {
	TimedOut int `json:"timed_out"`
}

// Empty is used for methods without arguments.
type Empty struct{}

// CheckAutonomy decides whether an agent may perform an action.
func (h *Handler) CheckAutonomy(req *domain.AutonomyCheckInput, resp *domain.AutonomyCheckResult) error {
	if req == nil {
		return errors.New("autonomy check request is required")
	}
	result, err := h.service.CheckAutonomy(context.Background(), *req)
	if err != nil {
		return h.wrap("CheckAutonomy", err)
	}
	*resp = *result
	return nil
}

// RequestAction gates, logs and if needed opens an approval for an action.
func (h *Handler) RequestAction(req *domain.ActionRequest, resp *domain.ActionOutcome) error {
	if req == nil {
		return errors.New("action request is required")
	}
	outcome, err := h.service.RequestAction(context.Background(), *req)
	if err != nil {
		return h.wrap("RequestAction", err)
	}
	*resp = *outcome
	return nil
}

// SubmitApprovalDecision resolves a pending approval.
func (h *Handler) SubmitApprovalDecision(req *ApprovalDecisionArgs, resp *domain.ApprovalRequest) error {
	if req == nil {
		return errors.New("approval decision request is required")
	}
	if req.ApprovalID == "" {
		return errors.New("approval_id is required")
	}

	status, ok := domain.ApprovalStatusForDecision(strings.ToLower(strings.TrimSpace(req.Request.Decision)))
	if !ok {
		return errors.New("decision must be approve, reject or cancel")
	}
	approverType := req.Request.ApproverType
	if approverType == "" {
		approverType = domain.ApproverHuman
	}

	ap, err := h.service.ResolveApproval(context.Background(), req.ApprovalID, domain.ResolveApprovalInput{
		Status:       status,
		ResponderID:  req.Request.DecidedBy,
		ApproverType: approverType,
		Note:         req.Request.Reason,
	})
	if err != nil {
		return h.wrap("SubmitApprovalDecision", err)
	}
	*resp = *ap
	return nil
}

// SweepExpiredApprovals times out pending approvals past their expiry.
func (h *Handler) SweepExpiredApprovals(_ *Empty, resp *SweepResponse) error {
	n, err := h.service.SweepExpiredApprovals(context.Background())
	if err != nil {
		return h.wrap("SweepExpiredApprovals", err)
	}
	resp.TimedOut = n
	return nil
}

// InitiateHandoff creates a pending handoff and posts it to the chat channel.
func (h *Handler) InitiateHandoff(req *domain.InitiateHandoffInput, resp *domain.NotifyResult) error {
	if req == nil {
		return errors.New("handoff request is required")
	}
	res, err := h.service.InitiateAndNotifyHandoff(context.Background(), *req)
	if err != nil {
		return h.wrap("InitiateHandoff", err)
	}
	*resp = *res
	return nil
}

// AcceptHandoff accepts a pending handoff and returns the receiving agent's briefing.
func (h *Handler) AcceptHandoff(req *HandoffArgs, resp *domain.HandoffContext) error {
	if err := req.validate(); err != nil {
		return err
	}
	hc, err := h.service.AcceptHandoff(context.Background(), req.HandoffID, req.AgentID)
	if err != nil {
		return h.wrap("AcceptHandoff", err)
	}
	*resp = *hc
	return nil
}

// DeclineHandoff declines a pending handoff.
func (h *Handler) DeclineHandoff(req *HandoffArgs, resp *domain.AgentHandoff) error {
	if err := req.validate(); err != nil {
		return err
	}
	ho, err := h.service.DeclineHandoff(context.Background(), req.HandoffID, req.AgentID, req.Reason)
	if err != nil {
		return h.wrap("DeclineHandoff", err)
	}
	*resp = *ho
	return nil
}

// CompleteHandoff completes an accepted handoff.
func (h *Handler) CompleteHandoff(req *HandoffArgs, resp *domain.AgentHandoff) error {
	if err := req.validate(); err != nil {
		return err
	}
	ho, err := h.service.CompleteHandoff(context.Background(), req.HandoffID, req.AgentID)
	if err != nil {
		return h.wrap("CompleteHandoff", err)
	}
	*resp = *ho
	return nil
}

// CancelHandoff withdraws a pending handoff.
func (h *Handler) CancelHandoff(req *HandoffArgs, resp *domain.AgentHandoff) error {
	if err := req.validate(); err != nil {
		return err
	}
	ho, err := h.service.CancelHandoff(context.Background(), req.HandoffID, req.AgentID)
	if err != nil {
		return h.wrap("CancelHandoff", err)
	}
	*resp = *ho
	return nil
}

// HandleChannelAction applies a button press relayed by the bridge.
func (h *Handler) HandleChannelAction(req *domain.ChannelActionRequest, resp *domain.ChannelActionResult) error {
	if req == nil {
		return errors.New("channel action request is required")
	}
	res, err := h.service.HandleChannelAction(context.Background(), *req)
	if err != nil {
		return h.wrap("HandleChannelAction", err)
	}
	*resp = *res
	return nil
}

func (a *HandoffArgs) validate() error {
	if a == nil {
		return errors.New("handoff request is required")
	}
	if a.HandoffID == "" {
		return errors.New("handoff_id is required")
	}
	if a.AgentID == "" {
		return errors.New("agent_id is required")
	}
	return nil
}

// wrap prefixes err with its kind; net/rpc only carries the error text.
func (h *Handler) wrap(method string, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.logger.Error("rpc call failed", zap.String("method", method), zap.Error(err))
	}
	return fmt.Errorf("%s: %s", kind, err.Error())
}
