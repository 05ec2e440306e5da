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

const actionColumns = `id, agent_id, action_type, action_category, description, input_data, output_data, tools_used,
	creator_id, project_id, conversation_id, cost, requires_approval, approval_status, approved_by, approved_at,
	success, error_message, created_at`

// LogAction appends an entry to the action log.
func (s *SQLiteStore) LogAction(ctx context.Context, e *domain.ActionLogEntry) error {
	return logAction(ctx, s.db, e)
}

func logAction(ctx context.Context, q queryer, e *domain.ActionLogEntry) error {
	var approvalStatus sql.NullString
	if e.ApprovalStatus != nil {
		approvalStatus = nullString(string(*e.ApprovalStatus))
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO action_logs (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.ActionType, e.ActionCategory, e.Description,
		nullStringBytes(e.InputData), nullStringBytes(e.OutputData), marshalStrings(e.ToolsUsed),
		nullString(e.CreatorID), nullString(e.ProjectID), nullString(e.ConversationID), nullFloat(e.Cost),
		boolInt(e.RequiresApproval), approvalStatus, nullString(e.ApprovedBy), nullTime(e.ApprovedAt),
		boolInt(e.Success), nullString(e.ErrorMessage), e.CreatedAt.UTC())
	return err
}

// GetActionLog retrieves an action log entry by ID.
func (s *SQLiteStore) GetActionLog(ctx context.Context, id string) (*domain.ActionLogEntry, error) {
	return getActionLog(ctx, s.db, id)
}

func getActionLog(ctx context.Context, q queryer, id string) (*domain.ActionLogEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_logs WHERE id = ?`, id)
	entry, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListActionLogs lists action log entries, newest first.
func (s *SQLiteStore) ListActionLogs(ctx context.Context, filter domain.ActionLogFilter) ([]domain.ActionLogEntry, error) {
	var where []string
	var args []any
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.ApprovalStatus != "" {
		where = append(where, "approval_status = ?")
		args = append(args, filter.ApprovalStatus)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + actionColumns + ` FROM action_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActionLogEntry
	for rows.Next() {
		entry, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// UpdateActionApproval mirrors an approval decision onto an action that requires approval.
// It returns nil when no such action exists.
func (s *SQLiteStore) UpdateActionApproval(ctx context.Context, id string, status domain.ApprovalStatus, approverID string, at time.Time) (*domain.ActionLogEntry, error) {
	var entry *domain.ActionLogEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := updateActionApproval(ctx, tx, id, status, approverID, at)
		if err != nil || !ok {
			return err
		}
		entry, err = getActionLog(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func updateActionApproval(ctx context.Context, q queryer, id string, status domain.ApprovalStatus, approverID string, at time.Time) (bool, error) {
	var approvedAt sql.NullTime
	if status != domain.ApprovalStatusPending {
		approvedAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	return execAffected(ctx, q,
		`UPDATE action_logs SET approval_status = ?, approved_by = ?, approved_at = ?
		 WHERE id = ? AND requires_approval = 1`,
		status, nullString(approverID), approvedAt, id)
}

// CountActions counts successful actions of an agent since a point in time.
// An empty actionType counts every type except governance audit rows.
func (s *SQLiteStore) CountActions(ctx context.Context, agentID, actionType string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM action_logs WHERE agent_id = ? AND success = 1 AND created_at >= ?`
	args := []any{agentID, since.UTC()}
	if actionType != "" {
		query += ` AND action_type = ?`
		args = append(args, actionType)
	} else {
		query += ` AND action_category <> ?`
		args = append(args, domain.ActionCategoryGovernance)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LastActionAt returns the time of the agent's most recent successful action of a type.
func (s *SQLiteStore) LastActionAt(ctx context.Context, agentID, actionType string) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM action_logs WHERE agent_id = ? AND action_type = ? AND success = 1
		 ORDER BY created_at DESC LIMIT 1`,
		agentID, actionType).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at = at.UTC()
	return &at, nil
}

// SumActionCost sums the cost of the agent's successful actions since a point in time.
func (s *SQLiteStore) SumActionCost(ctx context.Context, agentID string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(cost) FROM action_logs WHERE agent_id = ? AND success = 1 AND cost IS NOT NULL AND created_at >= ?`,
		agentID, since.UTC()).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func scanAction(row rowScanner) (*domain.ActionLogEntry, error) {
	var e domain.ActionLogEntry
	var input, output, tools, creatorID, projectID, conversationID, approvalStatus, approvedBy, errMsg sql.NullString
	var cost sql.NullFloat64
	var approvedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.AgentID, &e.ActionType, &e.ActionCategory, &e.Description, &input, &output, &tools,
		&creatorID, &projectID, &conversationID, &cost, &e.RequiresApproval, &approvalStatus, &approvedBy, &approvedAt,
		&e.Success, &errMsg, &e.CreatedAt); err != nil {
		return nil, err
	}
	if input.Valid {
		e.InputData = json.RawMessage(input.String)
	}
	if output.Valid {
		e.OutputData = json.RawMessage(output.String)
	}
	e.ToolsUsed = unmarshalStrings(tools)
	e.CreatorID = creatorID.String
	e.ProjectID = projectID.String
	e.ConversationID = conversationID.String
	e.Cost = floatPtr(cost)
	if approvalStatus.Valid {
		st := domain.ApprovalStatus(approvalStatus.String)
		e.ApprovalStatus = &st
	}
	e.ApprovedBy = approvedBy.String
	e.ApprovedAt = timePtr(approvedAt)
	e.ErrorMessage = errMsg.String
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
