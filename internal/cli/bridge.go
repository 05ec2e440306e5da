package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/agentgate/internal/bridge"
	"github.com/xiaot623/gogo/agentgate/internal/config"
)

func newBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the WebSocket chat bridge agentgate posts notifications to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			bcfg, err := config.LoadBridge()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, cfg.LogFormat)
			defer func() { _ = logger.Sync() }()

			return runBridge(ctx, bcfg, logger)
		},
	}
}

func runBridge(ctx context.Context, cfg *config.BridgeConfig, logger *zap.Logger) error {
	logger.Info("starting bridge",
		zap.Int("ws_port", cfg.WSPort),
		zap.Int("rpc_port", cfg.RPCPort),
		zap.String("agentgate_addr", cfg.AgentGateAddr))

	hub := bridge.NewHub(logger)
	server := bridge.NewServer(cfg, hub, bridge.NewAgentGateClient(cfg.AgentGateAddr), logger)

	rpcServer, err := bridge.NewRPCServer(hub, cfg.DefaultChannel, logger)
	if err != nil {
		return err
	}
	rpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPCPort))
	if err != nil {
		return fmt.Errorf("bridge rpc server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		logger.Info("websocket server listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := rpcServer.Serve(rpcListener); err != nil {
			return fmt.Errorf("bridge rpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down bridge")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown websocket server gracefully", zap.Error(err))
		}
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown bridge rpc server gracefully", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("bridge stopped")
	return err
}
