package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/metrics"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/policy"
	"github.com/xiaot623/gogo/agentgate/tests/helpers"
)

var errBridgeDown = errors.New("bridge down")

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.AgentMessage
	fail bool
}

func (f *fakeNotifier) PostAgentMessage(_ context.Context, msg domain.AgentMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errBridgeDown
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("C1:%d.000100", len(f.sent)), nil
}

func (f *fakeNotifier) last() domain.AgentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	store    *store.SQLiteStore
	notifier *fakeNotifier
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := New(db, notifier, engine, metrics.NewCollector("test"), config.Default(), nil)
	svc.now = clock.Now

	return &fixture{svc: svc, store: db, notifier: notifier, clock: clock}
}

func (f *fixture) agent(t *testing.T, id, name string) {
	t.Helper()
	helpers.SeedAgent(t, f.store, id, name, domain.AgentStatusActive)
}

func requireKind(t require.TestingT, err error, kind domain.ErrorKind) {
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}

func ptr[T any](v T) *T { return &v }
