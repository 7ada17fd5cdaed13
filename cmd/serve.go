package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/config"
	"github.com/teemow/mailsense/internal/google"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/tools/auth_tools"
	"github.com/teemow/mailsense/internal/tools/session_tools"
)

const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions are the serve command flags.
type serveOptions struct {
	transport        string
	addr             string
	baseURL          string
	allowedOrigins   string
	disableMCP       bool
	disableStreaming bool
	metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mailsense server",
		Long: `Start the mailsense HTTP server. It serves:
  - the JSON API under /api
  - live session views over WebSockets at /ws/session
  - the Google OAuth callback and the authorization completion page
  - MCP over streamable HTTP at /mcp (disable with --disable-mcp)
  - health endpoints at /healthz, /readyz and /healthz/detailed

Supports two transports for MCP:
  - http: MCP is served at /mcp on the HTTP server (default)
  - stdio: MCP is served on standard input/output; the HTTP server still
    runs to receive the OAuth callback

Configuration is read from the environment and .env files:
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET   OAuth client (required)
  OPENAI_API_KEY                           Language model (required for analysis)
  MAILSENSE_BASE_URL                       Public URL, used for the OAuth redirect
  MAILSENSE_SESSION_BACKEND                memory, file, sqlite or valkey`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", transportHTTP, "MCP transport: http or stdio")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP server address. Can also use MAILSENSE_ADDR env var. (default :8080)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Public base URL for the OAuth redirect. Can also use MAILSENSE_BASE_URL env var. Example: https://mailsense.example.com")
	cmd.Flags().StringVar(&opts.allowedOrigins, "allowed-origins", "", "Comma-separated browser origins allowed for CORS and WebSockets. Can also use MAILSENSE_ALLOWED_ORIGINS env var.")
	cmd.Flags().BoolVar(&opts.disableMCP, "disable-mcp", false, "Do not serve MCP at /mcp (http transport only)")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Disable streaming for the MCP endpoint (for compatibility with certain clients)")

	// Metrics server flags
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", "", "Metrics server address. Can also use METRICS_ADDR env var. (default :9090)")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	if opts.transport != transportHTTP && opts.transport != transportStdio {
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio)", opts.transport)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeOverrides(cfg, opts)
	if v := os.Getenv("METRICS_ENABLED"); v == "false" && !cmd.Flags().Changed("metrics-enabled") {
		opts.metrics.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appOpts := appOptions{Instrumented: true, WatchSessions: true}
	if opts.transport == transportStdio {
		// The assistant has no window to open the consent page in.
		appOpts.SystemBrowser = true
	}
	a, err := newApp(shutdownCtx, cfg, appOpts)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && a.provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: a.provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	mcpSrv, err := newMCPServer(a, userID)
	if err != nil {
		return err
	}

	serverOpts := server.Options{
		Addr:           cfg.Addr,
		BaseURL:        cfg.BaseURL,
		AllowedOrigins: cfg.AllowedOrigins,
		Development:    cfg.IsDevelopment(),
		Logger:         logger,
		Metrics:        a.metrics,
	}
	if opts.transport == transportHTTP && !opts.disableMCP {
		streamOpts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(server.MCPPath)}
		if opts.disableStreaming {
			streamOpts = append(streamOpts, mcpserver.WithDisableStreaming(true))
		}
		serverOpts.MCPHandler = mcpserver.NewStreamableHTTPServer(mcpSrv, streamOpts...)
	}

	httpServer := server.New(a.sc, serverOpts)
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	logger.Info("mailsense server started",
		slog.String("addr", cfg.Addr),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_backend", cfg.SessionBackend),
		slog.String("transport", opts.transport),
		slog.String("oauth_callback", cfg.BaseURL+google.CallbackPath),
		slog.String("completion_page", cfg.BaseURL+auth.CompletionPath))

	stdioDone := make(chan error, 1)
	if opts.transport == transportStdio {
		go func() {
			defer close(stdioDone)
			if err := mcpserver.ServeStdio(mcpSrv); err != nil {
				stdioDone <- err
			}
		}()
	}

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received, stopping server")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	case err, ok := <-stdioDone:
		if ok && err != nil {
			runErr = fmt.Errorf("MCP stdio server stopped with error: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return runErr
}

// newMCPServer creates the MCP server with every tool group registered.
func newMCPServer(a *app, localUser string) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("mailsense", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, a.sc, localUser); err != nil {
		return nil, err
	}
	return mcpSrv, nil
}

func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, localUser string) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Auth",
			register: func() error {
				return auth_tools.RegisterAuthTools(mcpSrv, sc, localUser)
			},
		},
		{
			name: "Session",
			register: func() error {
				return session_tools.RegisterSessionTools(mcpSrv, sc, localUser)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}

// applyServeOverrides lets flags that were set win over the loaded
// configuration.
func applyServeOverrides(cfg *config.Config, opts serveOptions) {
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}
	if origins := config.SplitList(opts.allowedOrigins); origins != nil {
		cfg.AllowedOrigins = origins
	}
	if opts.metrics.Addr != "" {
		cfg.MetricsAddr = opts.metrics.Addr
	}
}
