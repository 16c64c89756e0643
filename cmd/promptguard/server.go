package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/promptguard/gate"
	"github.com/bluesky-social/promptguard/gate/settings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Server struct {
	gate     *gate.Gate
	settings SettingsSource
	watcher  *settings.Watcher
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
}

type Config struct {
	Logger *slog.Logger
	Gate   *gate.Gate
	// used for every decision; when it is a *settings.Watcher the file is also watched for changes
	Settings SettingsSource
	Bind     string
	// requests per second per client IP; zero disables
	APIRateLimit float64
}

func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		gate:     config.Gate,
		settings: config.Settings,
		echo:     e,
		logger:   logger,
	}
	if w, ok := config.Settings.(*settings.Watcher); ok {
		srv.watcher = w
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddleware("promptguard"))
	if config.APIRateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(config.APIRateLimit)),
		}))
	}
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/v1/evaluate", srv.HandleEvaluate)
	e.GET("/v1/users/:userID", srv.HandleGetUser)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Run serves the API and metrics endpoints, and watches the settings file if one is configured, until the context is cancelled or the process receives SIGINT/SIGTERM.
func (srv *Server) Run(ctx context.Context, metricsListen string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsd := &http.Server{
		Addr:    metricsListen,
		Handler: metricsMux,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		srv.logger.Info("starting server", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		srv.logger.Info("starting metrics endpoint", "bind", metricsListen)
		if err := metricsd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if srv.watcher != nil {
		eg.Go(func() error {
			return srv.watcher.Run(ctx)
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		srv.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(
			srv.httpd.Shutdown(shutdownCtx),
			metricsd.Shutdown(shutdownCtx),
		)
	})

	err := eg.Wait()
	srv.logger.Info("graceful shutdown complete")
	return err
}
