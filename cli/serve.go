package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/petalmcp/config"
	"github.com/petal-labs/petalmcp/engine"
	petalotel "github.com/petal-labs/petalmcp/otel"
	"github.com/petal-labs/petalmcp/tool"
	"github.com/petal-labs/petalmcp/transport"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog to MCP clients",
		Long: "Serve the tool catalog over stdio (one client on stdin/stdout) or " +
			"SSE (any number of HTTP clients).",
		RunE: runServe,
	}

	cmd.Flags().String("transport", config.TransportStdio, "Transport type: stdio | sse")
	cmd.Flags().IntP("port", "p", config.DefaultPort, "Port to listen on for SSE")
	cmd.Flags().String("host", config.DefaultHost, "Host to listen on for SSE")
	cmd.Flags().String("cors-origin", config.DefaultCORSOrigin, "Allowed CORS origin for SSE")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	if configPath != "" {
		logger.Info("loaded config", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := petalotel.SetupTracing(ctx, petalotel.TracingConfig{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Server.Version,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	callObserver, err := petalotel.NewCallObserver(
		otelapi.GetMeterProvider().Meter("petalmcp/tool"),
		otelapi.GetTracerProvider().Tracer("petalmcp/tool"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing tool observability: %v", err)
	}
	tool.SetObserver(callObserver)
	defer tool.SetObserver(nil)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("starting server",
		"name", cfg.Server.Name,
		"transport", cfg.Transport.Type,
		"tools", eng.Registry().Len(),
	)

	switch cfg.Transport.Type {
	case config.TransportSSE:
		return serveSSE(ctx, cmd, cfg, eng, logger)
	default:
		return serveStdio(ctx, cmd, eng, logger)
	}
}

func serveStdio(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, logger *slog.Logger) error {
	stdio := &transport.Stdio{
		In:     cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
		Engine: eng,
		Logger: logger,
	}
	err := stdio.Serve(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case engine.IsFatal(err):
		return exitError(exitRuntime, "session terminated: %v", err)
	default:
		return exitError(exitRuntime, "stdio transport: %v", err)
	}
}

func serveSSE(ctx context.Context, cmd *cobra.Command, cfg config.Config, eng *engine.Engine, logger *slog.Logger) error {
	server, err := transport.NewSSEServer(eng, transport.SSEConfig{
		Addr:             cfg.Transport.Addr(),
		SSEPath:          cfg.Transport.SSEPath,
		MessagePath:      cfg.Transport.MessagePath,
		CORSOrigin:       cfg.Transport.CORSOrigin,
		MaxBody:          cfg.Transport.MaxBody,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		Logger:           logger,
	})
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "petalmcp listening on http://%s%s\n", cfg.Transport.Addr(), cfg.Transport.SSEPath)
	if err := server.ListenAndServe(ctx); err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	return nil
}
