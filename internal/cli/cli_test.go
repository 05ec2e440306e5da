package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
)

// setupEnv points the CLI at a fresh database with one active agent.
func setupEnv(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agentgate.db")
	t.Setenv("AGENTGATE_DATABASE_URL", dbPath)
	t.Setenv("AGENTGATE_LOG_LEVEL", "error")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.UpsertAgent(context.Background(), &domain.Agent{
		AgentID: "sales", Name: "Sales", Status: domain.AgentStatusActive, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.Close())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCheckCmd(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "check", "--agent", "sales", "--action", "process_payment")
	require.NoError(t, err)

	var res domain.AutonomyCheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Allowed)
	assert.True(t, res.RequiresApproval)
	assert.Equal(t, domain.AutonomyHumanRequired, res.Level)
}

func TestCheckCmdRequiresFlags(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "check", "--agent", "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--action")
}

func TestCheckCmdUnknownAgent(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "check", "--agent", "ghost", "--action", "send_email")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestSweepCmd(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "timed out 0 approval(s)", strings.TrimSpace(out))
}

func TestInvalidConfigFailsFast(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTGATE_HANDOFF_HISTORY_LIMIT", "0")

	_, err := run(t, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HANDOFF_HISTORY_LIMIT")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "agentgate "+Version, strings.TrimSpace(out))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger("loud", "json")
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestBridgeCmdRejectsInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("AGENTGATE_BRIDGE_READ_TIMEOUT", "10s")

	_, err := run(t, "bridge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READ_TIMEOUT")
}
