package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	api "github.com/oshokin/bundle-launcher/internal/api/grpc/supervisor"
	"github.com/oshokin/bundle-launcher/internal/app"
	"github.com/oshokin/bundle-launcher/internal/config"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/metrics"
	"github.com/oshokin/bundle-launcher/internal/service/common"
)

// Options controls the bundle-supervisor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// MetricsAddress overrides where Prometheus metrics are served; "-" disables them.
	MetricsAddress string
}

const (
	// metricsNamespace prefixes every exported metric.
	metricsNamespace = "bundle_launcher"
	// eventBuffer is the per-subscriber capacity of console streams.
	eventBuffer = 1024
	// stopTimeout bounds graceful shutdown of servers and processes.
	stopTimeout = 15 * time.Second
	// metricsReadHeaderTimeout protects the metrics endpoint from slow clients.
	metricsReadHeaderTimeout = 5 * time.Second
	// metricsDisabled turns the metrics endpoint off from the command line.
	metricsDisabled = "-"
)

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the supervisor daemon and blocks until context is canceled or server stops.
// Live processes are closed on shutdown.
//
//nolint:funlen // Startup and shutdown read best in one place.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	common.ConfigureLogger(ctx, settings)

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "bundle-supervisor")

	// Determine listen address: CLI argument overrides config.
	listenAddress, err := resolveListenAddress(settings.Supervisor.Address, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	// Console streams subscribe to the bus; every component reports to the collector.
	bus := events.NewBus(eventBuffer)
	collector := metrics.NewPrometheusCollector(metricsNamespace)

	application, err := app.New(settings, app.WithPublisher(bus), app.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	svc := newService(application)
	svc.startup(ctx)

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	// Create and configure gRPC server with the supervisor service.
	grpcServer := grpc.NewServer()
	api.RegisterSupervisorServer(grpcServer, api.NewServer(svc, bus))

	metricsServer := startMetrics(ctx, resolveMetricsAddress(settings.Supervisor.MetricsAddress, opts.MetricsAddress), collector)

	logger.InfoKV(ctx, "Supervisor listening", "listen_address", listenAddress, "data_dir", settings.DataDir)

	// Done channel is closed after shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()

		stopGRPC(stopCtx, grpcServer)

		if metricsServer != nil {
			_ = metricsServer.Shutdown(stopCtx)
		}

		if err := application.Shutdown(stopCtx); err != nil {
			logger.ErrorKV(ctx, "Closing processes failed", "error", err)
		}
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// stopGRPC stops gracefully, then forcefully once ctx ends: console streams
// only finish when their clients leave.
func stopGRPC(ctx context.Context, grpcServer *grpc.Server) {
	stopped := make(chan struct{})

	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		grpcServer.Stop()
	}
}

// startMetrics serves Prometheus metrics on address; an empty address disables them.
func startMetrics(ctx context.Context, address string, collector *metrics.PrometheusCollector) *http.Server {
	if address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorKV(ctx, "Metrics server failed", "address", address, "error", err)
		}
	}()

	logger.InfoKV(ctx, "Serving metrics", "address", address)

	return server
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise uses configAddr as is:
// the daemon binds to loopback unless told otherwise.
func resolveListenAddress(configAddr, override string) (string, error) {
	// Use override address if provided (e.g., ":9090", "0.0.0.0:8080").
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	if _, _, err := net.SplitHostPort(configAddr); err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return configAddr, nil
}

// resolveMetricsAddress applies the command line override to the configured metrics address.
func resolveMetricsAddress(configAddr, override string) string {
	switch override {
	case "":
		return configAddr
	case metricsDisabled:
		return ""
	default:
		return override
	}
}
