package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const approvalColumns = `id, agent_id, action_log_id, action_type, action_payload, reason, requested_at,
	approver_type, approver_id, status, responded_at, response_note, channel_message_ref, expires_at`

// CreateApproval creates a new approval request. A second pending request for
// the same action fails with DuplicateApprovalError.
func (s *SQLiteStore) CreateApproval(ctx context.Context, ap *domain.ApprovalRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_requests (`+approvalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID, ap.AgentID, nullString(ap.ActionLogID), ap.ActionType, nullStringBytes(ap.ActionPayload), nullString(ap.Reason),
		ap.RequestedAt.UTC(), nullString(string(ap.ApproverType)), nullString(ap.ApproverID), ap.Status,
		nullTime(ap.RespondedAt), nullString(ap.ResponseNote), nullString(ap.ChannelMessageRef), ap.ExpiresAt.UTC())
	if isUniqueViolation(err) {
		return &domain.DuplicateApprovalError{ActionLogID: ap.ActionLogID}
	}
	return err
}

// GetApproval retrieves an approval request by ID.
func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return getApprovalWhere(ctx, s.db, `id = ?`, id)
}

// GetPendingApprovalForAction retrieves the open approval request of an action, if any.
func (s *SQLiteStore) GetPendingApprovalForAction(ctx context.Context, actionLogID string) (*domain.ApprovalRequest, error) {
	return getApprovalWhere(ctx, s.db, `action_log_id = ? AND status = 'pending'`, actionLogID)
}

// GetApprovalByChannelRef retrieves the approval request announced by a chat message.
func (s *SQLiteStore) GetApprovalByChannelRef(ctx context.Context, ref string) (*domain.ApprovalRequest, error) {
	return getApprovalWhere(ctx, s.db, `channel_message_ref = ?`, ref)
}

func getApprovalWhere(ctx context.Context, q queryer, where string, args ...any) (*domain.ApprovalRequest, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE `+where+` ORDER BY requested_at DESC LIMIT 1`, args...)
	ap, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ap, nil
}

// ListApprovals lists approval requests, newest first.
func (s *SQLiteStore) ListApprovals(ctx context.Context, filter domain.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	var where []string
	var args []any
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.ActionLogID != "" {
		where = append(where, "action_log_id = ?")
		args = append(args, filter.ActionLogID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + approvalColumns + ` FROM approval_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY requested_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return queryApprovals(ctx, s.db, query, args...)
}

// SetApprovalChannelRef records the chat message that announced an approval request.
func (s *SQLiteStore) SetApprovalChannelRef(ctx context.Context, id, ref string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE approval_requests SET channel_message_ref = ? WHERE id = ?`, ref, id)
	return err
}

// ResolveApproval moves a pending approval request to a terminal status and
// mirrors the decision onto the correlated action log entry in one transaction.
// It returns nil when the request was no longer pending, or when RespondedAt
// is on the wrong side of expires_at: a timeout needs an expired request and
// every other status needs a live one.
func (s *SQLiteStore) ResolveApproval(ctx context.Context, res domain.ApprovalResolution) (*domain.ApprovalRequest, error) {
	expiry := `expires_at > ?`
	if res.Status == domain.ApprovalStatusTimeout {
		expiry = `expires_at <= ?`
	}
	var out *domain.ApprovalRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := execAffected(ctx, tx,
			`UPDATE approval_requests
			 SET status = ?, responded_at = ?, approver_type = COALESCE(?, approver_type),
				approver_id = COALESCE(?, approver_id), response_note = ?
			 WHERE id = ? AND status = 'pending' AND `+expiry,
			res.Status, res.RespondedAt.UTC(), nullString(string(res.ApproverType)), nullString(res.ResponderID),
			nullString(res.Note), res.ApprovalID, res.RespondedAt.UTC())
		if err != nil {
			return fmt.Errorf("update approval: %w", err)
		}
		if !ok {
			return nil
		}

		ap, err := getApprovalWhere(ctx, tx, `id = ?`, res.ApprovalID)
		if err != nil {
			return err
		}
		if ap.ActionLogID != "" {
			updated, err := updateActionApproval(ctx, tx, ap.ActionLogID, res.Status, res.ResponderID, res.RespondedAt)
			if err != nil {
				return fmt.Errorf("update action log: %w", err)
			}
			if !updated {
				return fmt.Errorf("action log %s did not accept approval status %s", ap.ActionLogID, res.Status)
			}
		}
		out = ap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpiredApprovals lists pending approval requests whose expiry is at or before now.
func (s *SQLiteStore) ListExpiredApprovals(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalRequest, error) {
	return queryApprovals(ctx, s.db,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE status = 'pending' AND expires_at <= ?
		 ORDER BY expires_at ASC
		 LIMIT ?`, now.UTC(), limit)
}

func queryApprovals(ctx context.Context, q queryer, query string, args ...any) ([]domain.ApprovalRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApprovalRequest
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ap)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var ap domain.ApprovalRequest
	var actionLogID, payload, reason, approverType, approverID, note, channelRef sql.NullString
	var respondedAt sql.NullTime
	if err := row.Scan(&ap.ID, &ap.AgentID, &actionLogID, &ap.ActionType, &payload, &reason, &ap.RequestedAt,
		&approverType, &approverID, &ap.Status, &respondedAt, &note, &channelRef, &ap.ExpiresAt); err != nil {
		return nil, err
	}
	ap.ActionLogID = actionLogID.String
	if payload.Valid {
		ap.ActionPayload = json.RawMessage(payload.String)
	}
	ap.Reason = reason.String
	ap.ApproverType = domain.ApproverType(approverType.String)
	ap.ApproverID = approverID.String
	ap.RespondedAt = timePtr(respondedAt)
	ap.ResponseNote = note.String
	ap.ChannelMessageRef = channelRef.String
	ap.RequestedAt = ap.RequestedAt.UTC()
	ap.ExpiresAt = ap.ExpiresAt.UTC()
	return &ap, nil
}
