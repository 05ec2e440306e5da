package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			capabilities TEXT,
			tool_access TEXT,
			channel_ref TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS action_logs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			action_category TEXT NOT NULL,
			description TEXT NOT NULL,
			input_data TEXT,
			output_data TEXT,
			tools_used TEXT,
			creator_id TEXT,
			project_id TEXT,
			conversation_id TEXT,
			cost REAL,
			requires_approval INTEGER NOT NULL DEFAULT 0,
			approval_status TEXT,
			approved_by TEXT,
			approved_at DATETIME,
			success INTEGER NOT NULL,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			CHECK ((requires_approval = 1) = (approval_status IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_logs_agent_type ON action_logs(agent_id, action_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_action_logs_conversation ON action_logs(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS autonomy_settings (
			agent_id TEXT PRIMARY KEY,
			max_actions_per_hour INTEGER,
			max_cost_per_day REAL,
			require_human_for_high_value REAL,
			learn_from_approvals INTEGER NOT NULL DEFAULT 0,
			learn_from_rejections INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS action_autonomy (
			agent_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			category TEXT NOT NULL,
			autonomy_level TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			requires_approval INTEGER NOT NULL DEFAULT 0,
			max_per_day INTEGER,
			cooldown_hours REAL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (agent_id, action_type)
		)`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			action_log_id TEXT,
			action_type TEXT NOT NULL,
			action_payload TEXT,
			reason TEXT,
			requested_at DATETIME NOT NULL,
			approver_type TEXT,
			approver_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			responded_at DATETIME,
			response_note TEXT,
			channel_message_ref TEXT,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (action_log_id) REFERENCES action_logs(id)
		)`,
		// At most one open approval per action.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_approval_pending_action
			ON approval_requests(action_log_id) WHERE status = 'pending' AND action_log_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_approval_status_expires ON approval_requests(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_channel_ref ON approval_requests(channel_message_ref)`,
		`CREATE TABLE IF NOT EXISTS agent_handoffs (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			from_agent_id TEXT NOT NULL,
			to_agent_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			key_points TEXT NOT NULL,
			context_summary TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			channel_message_ref TEXT,
			decline_reason TEXT,
			created_at DATETIME NOT NULL,
			accepted_at DATETIME,
			resolved_at DATETIME,
			FOREIGN KEY (from_agent_id) REFERENCES agents(agent_id),
			FOREIGN KEY (to_agent_id) REFERENCES agents(agent_id)
		)`,
		// At most one pending handoff per conversation.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_handoff_pending_conversation
			ON agent_handoffs(conversation_id) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_to_agent ON agent_handoffs(to_agent_id, status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_handoffs_channel_ref ON agent_handoffs(channel_message_ref)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			owner_agent_id TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_messages ON conversation_messages(conversation_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("agents", "channel_ref", "ALTER TABLE agents ADD COLUMN channel_ref TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("agent_handoffs", "decline_reason", "ALTER TABLE agent_handoffs ADD COLUMN decline_reason TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing only when fn returns nil.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execAffected runs a conditional write and reports whether any row changed.
func execAffected(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(n sql.NullString) []string {
	out := []string{}
	if n.Valid && n.String != "" {
		_ = json.Unmarshal([]byte(n.String), &out)
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
