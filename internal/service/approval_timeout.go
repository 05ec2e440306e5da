package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// RunApprovalExpiryMonitor sweeps expired approval requests every interval
// until ctx is cancelled.
func (s *Service) RunApprovalExpiryMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredApprovals(ctx)
		}
	}
}

// SweepExpiredApprovals moves pending approval requests past their expiry to
// timeout, together with their action log entries. It returns how many were moved.
func (s *Service) SweepExpiredApprovals(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	now := s.now()
	expired, err := s.store.ListExpiredApprovals(ctx, now, s.config.SweepBatch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, ap := range expired {
		resolved, err := s.store.ResolveApproval(ctx, domain.ApprovalResolution{
			ApprovalID:  ap.ID,
			Status:      domain.ApprovalStatusTimeout,
			Note:        "expired",
			RespondedAt: now,
		})
		if err != nil {
			s.logger.Warn("failed to mark approval timeout", zap.String("approval_id", ap.ID), zap.Error(err))
			continue
		}
		if resolved == nil {
			// Resolved by someone else since the listing.
			continue
		}
		s.metrics.RecordApprovalResolved(string(domain.ApprovalStatusTimeout))
		swept++
	}
	if swept > 0 {
		s.logger.Info("approvals timed out", zap.Int("count", swept))
	}
	return swept, nil
}

func (s *Service) sweepExpiredApprovals(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := s.SweepExpiredApprovals(sweepCtx); err != nil {
		s.logger.Warn("approval expiry sweep failed", zap.Error(err))
	}
}
