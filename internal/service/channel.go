package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// HandleChannelAction maps a button press on a posted message back to the
// handoff or approval request that message announced.
func (s *Service) HandleChannelAction(ctx context.Context, req domain.ChannelActionRequest) (*domain.ChannelActionResult, error) {
	ref := strings.TrimSpace(req.MessageRef)
	if ref == "" {
		return nil, &domain.ValidationError{Field: "message_ref", Message: "is required"}
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, &domain.ValidationError{Field: "agent_id", Message: "is required"}
	}

	switch req.Action {
	case domain.ChannelActionAccept, domain.ChannelActionDecline:
		h, err := s.store.GetHandoffByChannelRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to get handoff: %w", err)
		}
		if h == nil {
			return nil, &domain.NotFoundError{Entity: "handoff", ID: ref}
		}
		if req.Action == domain.ChannelActionAccept {
			accepted, hc, err := s.acceptHandoff(ctx, h.ID, req.AgentID)
			if err != nil {
				return nil, err
			}
			return &domain.ChannelActionResult{Handoff: accepted, Context: hc}, nil
		}
		declined, err := s.DeclineHandoff(ctx, h.ID, req.AgentID, "declined from channel")
		if err != nil {
			return nil, err
		}
		return &domain.ChannelActionResult{Handoff: declined}, nil

	case domain.ChannelActionApprove, domain.ChannelActionReject:
		ap, err := s.store.GetApprovalByChannelRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to get approval: %w", err)
		}
		if ap == nil {
			return nil, &domain.NotFoundError{Entity: "approval", ID: ref}
		}
		status := domain.ApprovalStatusApproved
		if req.Action == domain.ChannelActionReject {
			status = domain.ApprovalStatusRejected
		}
		resolved, err := s.ResolveApproval(ctx, ap.ID, domain.ResolveApprovalInput{
			Status:       status,
			ResponderID:  req.AgentID,
			ApproverType: domain.ApproverHuman,
			Note:         "resolved from channel",
		})
		if err != nil {
			return nil, err
		}
		return &domain.ChannelActionResult{Approval: resolved}, nil
	}
	return nil, &domain.ValidationError{Field: "action", Message: fmt.Sprintf("unsupported action %q", req.Action)}
}
