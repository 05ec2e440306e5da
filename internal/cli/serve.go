package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/xiaot623/gogo/agentgate/internal/transport/http"
	"github.com/xiaot623/gogo/agentgate/internal/transport/rpc"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the RPC server and the approval expiry monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	opts := httptransport.Options{
		Service: a.service,
		Metrics: a.metrics,
		Logger:  a.logger,
	}
	if a.slack != nil {
		opts.Interactions = a.slack
	}
	server := httptransport.NewServer(opts)

	// The RPC listener is bound up front so Shutdown always sees it.
	var (
		rpcServer   *rpc.Server
		rpcListener net.Listener
	)
	if a.cfg.RPCPort > 0 {
		var err error
		rpcServer, err = rpc.NewServer(a.service, a.logger)
		if err != nil {
			return err
		}
		rpcListener, err = net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.RPCPort))
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", a.cfg.HTTPPort)
		a.logger.Info("http server listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if rpcServer != nil {
		g.Go(func() error {
			if err := rpcServer.Serve(rpcListener); err != nil {
				return fmt.Errorf("rpc server: %w", err)
			}
			return nil
		})
	}

	if a.cfg.SweepInterval > 0 {
		g.Go(func() error {
			a.service.RunApprovalExpiryMonitor(gctx, a.cfg.SweepInterval)
			return nil
		})
	} else {
		a.logger.Info("approval expiry monitor disabled; run `agentgate sweep` from a scheduler")
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down agentgate")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
		}
		if rpcServer != nil {
			if err := rpcServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("failed to shutdown rpc server gracefully", zap.Error(err))
			}
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("agentgate stopped")
	return err
}
