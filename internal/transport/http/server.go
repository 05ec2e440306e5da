// Package http provides the HTTP server for agentgate.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/metrics"
	"github.com/xiaot623/gogo/agentgate/internal/service"
	"github.com/xiaot623/gogo/agentgate/internal/transport/http/internalapi"
	v1 "github.com/xiaot623/gogo/agentgate/internal/transport/http/v1"
)

// Options configures NewServer.
type Options struct {
	Service *service.Service
	// Metrics is optional. When set, requests are measured and /metrics is served.
	Metrics *metrics.Collector
	// Interactions is optional. When set, Slack callbacks are accepted.
	Interactions internalapi.InteractionParser
	Logger       *zap.Logger
}

// NewServer creates and configures the HTTP server. It serves the /v1 API for
// agents and operators and the /internal routes used by the notification
// bridge and schedulers.
func NewServer(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	if opts.Metrics != nil {
		e.Use(metricsMiddleware(opts.Metrics))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	// Handlers
	v1.NewHandler(opts.Service, logger).RegisterRoutes(e)
	internalapi.NewHandler(opts.Service, opts.Interactions, logger).RegisterRoutes(e)

	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}

// metricsMiddleware records request counts and latency by route template so
// path parameters do not blow up label cardinality.
func metricsMiddleware(collector *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			collector.RecordHTTPRequest(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}
