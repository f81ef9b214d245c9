package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/scancache/internal/ticker"
	"github.com/bluesky-social/scancache/pkg/metrics"
	"github.com/bluesky-social/scancache/readthrough"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Server struct {
	handler *readthrough.Handler
	echo    *echo.Echo
	httpd   *http.Server
	logger  *slog.Logger
}

type Config struct {
	Logger  *slog.Logger
	Handler *readthrough.Handler
	Bind    string
	// Registry for HTTP route metrics. Defaults to the global prometheus registerer.
	Registerer prometheus.Registerer
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

func NewServer(config Config) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("server requires a read-through handler")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		handler: config.Handler,
		echo:    e,
		logger:  logger,
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
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "scancache_http",
		Registerer: reg,
	}))
	e.Use(otelecho.Middleware("scancache"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/", srv.HandleRecords)
	e.GET("/records", srv.HandleRecords)

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// HandleRecords adapts an HTTP request to the read-through handler. The handler never returns an
// error; failures are already rendered as a 500 response.
func (srv *Server) HandleRecords(c echo.Context) error {
	req := c.Request()
	resp := srv.handler.Handle(req.Context(), readthrough.Request{
		Method:    req.Method,
		Path:      req.URL.Path,
		RequestID: req.Header.Get(echo.HeaderXRequestID),
		SourceIP:  c.RealIP(),
		UserAgent: req.UserAgent(),
	})
	return writeResponse(c, resp)
}

func writeResponse(c echo.Context, resp readthrough.Response) error {
	hdr := c.Response().Header()
	for k, v := range resp.Headers {
		hdr.Set(k, v)
	}
	contentType := resp.Headers[readthrough.HeaderContentType]
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "scancache", Version: versioninfo.Short()})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("scancache-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "scancache", Message: errorMessage}); err != nil {
		srv.logger.Error("failed to write error response", "err", err)
	}
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for a signal to exit.
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitSignals)

	select {
	case sig := <-exitSignals:
		srv.logger.Info("received OS exit signal", "signal", sig)
	case err := <-errCh:
		srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
		return err
	}

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
		return err
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the read-through cache as an HTTP service",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "Specify the local IP/port to bind to",
			Value:   ":8080",
			EnvVars: []string{"SCANCACHE_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"SCANCACHE_METRICS_LISTEN"},
		},
	}, cacheFlags...),
	Action: runServe,
}

func runServe(cctx *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := configLogger(cctx)
	if err != nil {
		return err
	}

	shutdownTracing, err := configOTEL(ctx, "scancache")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("failed to shutdown trace exporter", "err", err)
		}
	}()

	src, err := openSource(ctx, cctx, logger)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Error("failed to close source", "err", err)
		}
	}()

	handler, store, err := configHandler(cctx, logger, src)
	if err != nil {
		return err
	}

	srv, err := NewServer(Config{
		Logger:  logger,
		Handler: handler,
		Bind:    cctx.String("bind"),
	})
	if err != nil {
		return fmt.Errorf("failed to construct server: %v", err)
	}

	// prometheus HTTP endpoint: /metrics
	go func() {
		if err := metrics.RunServer(ctx, cctx.String("metrics-listen")); err != nil {
			logger.Error("failed to start metrics endpoint", "err", err)
		}
	}()

	go ticker.Every(ctx, 15*time.Second, logger, "report-snapshot-age", store.ReportAge) // nolint:errcheck

	return srv.RunAPI()
}
