package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/notify"
	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/metrics"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/internal/service"
	"github.com/xiaot623/gogo/agentgate/policy"
)

// app holds everything a command needs. close releases the store.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.SQLiteStore
	metrics *metrics.Collector
	slack   *notify.SlackNotifier
	service *service.Service
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newApp loads configuration from the environment and wires the service.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize policy engine: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   db,
		metrics: metrics.NewCollector("agentgate"),
	}

	notifier, err := a.notifier()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.service = service.New(db, notifier, policyEngine, a.metrics, cfg, logger)
	return a, nil
}

// notifier picks Slack when a bot token is set, then the JSON-RPC bridge,
// and otherwise disables notifications.
func (a *app) notifier() (notify.Notifier, error) {
	switch {
	case a.cfg.Slack.Enabled():
		sn, err := notify.NewSlackNotifier(notify.SlackOptions{
			BotToken:       a.cfg.Slack.BotToken,
			SigningSecret:  a.cfg.Slack.SigningSecret,
			APIBase:        a.cfg.Slack.APIBase,
			DefaultChannel: a.cfg.Slack.DefaultChannel,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize slack notifier: %w", err)
		}
		a.slack = sn
		a.logger.Info("notifications via slack")
		return sn, nil
	case a.cfg.BridgeRPCAddr != "":
		a.logger.Info("notifications via rpc bridge", zap.String("addr", a.cfg.BridgeRPCAddr))
		return notify.NewRPCNotifier(a.cfg.BridgeRPCAddr, a.logger), nil
	}
	a.logger.Warn("no notification bridge configured; handoffs and approvals will not be announced")
	return notify.NopNotifier{}, nil
}

func newLogger(level, format string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
