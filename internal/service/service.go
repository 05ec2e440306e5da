// Package service implements autonomy gating, the approval workflow and the
// handoff state machine on top of the store.
package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/notify"
	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/metrics"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/policy"
)

type Service struct {
	store        store.Store
	notifier     notify.Notifier
	policyEngine *policy.Engine
	metrics      *metrics.Collector
	config       *config.Config
	logger       *zap.Logger
	now          func() time.Time
}

// New wires a Service. A nil notifier disables notifications, a nil policy
// engine skips escalation rules other than the built-in high-value check, and
// nil metrics, config or logger fall back to private defaults.
func New(st store.Store, notifier notify.Notifier, policyEngine *policy.Engine, m *metrics.Collector, cfg *config.Config, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if m == nil {
		m = metrics.NewCollector("agentgate")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        st,
		notifier:     notifier,
		policyEngine: policyEngine,
		metrics:      m,
		config:       cfg,
		logger:       logger.With(zap.String("component", "service")),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func newID(prefix string) string {
	return prefix + uuid.New().String()
}
