package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/browser"
	"github.com/teemow/mailsense/internal/config"
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/google"
	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/workflow"
)

// appOptions select how the components are wired for one command.
type appOptions struct {
	// SystemBrowser opens authorization pages in the local browser and
	// prints the URL to stderr. Otherwise the web client opens them from the
	// authorization URL.
	SystemBrowser bool

	// Instrumented enables the metrics and tracing provider.
	Instrumented bool

	// WatchSessions forwards FileStore changes made by other processes.
	WatchSessions bool
}

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	store    session.Store
	local    *broadcast.Channel
	bus      broadcast.Bus
	tracker  *flow.Tracker
	google   *google.Client
	auth     *auth.Orchestrator
	workflow *workflow.Service
	sc       *server.ServerContext

	relay   *broadcast.ValkeyRelay
	watcher *session.Watcher
	valkey  valkey.Client
}

// loadConfig loads .env files and the environment.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Debug = true
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}
	a.logger = logging.NewLogger(os.Stderr, cfg.LogFormat, cfg.Debug)
	slog.SetDefault(a.logger)

	if err := cfg.RequireGoogle(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !opts.Instrumented {
		instrConfig.Enabled = false
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	a.provider = provider
	if provider.Enabled() {
		a.metrics = provider.Metrics()
	}

	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}

	a.local = broadcast.NewChannel(a.logger, a.metrics)
	a.bus = a.local
	if a.valkey != nil {
		a.relay = broadcast.NewValkeyRelay(a.local, a.valkey, cfg.Valkey.KeyPrefix, a.logger)
		a.bus = a.relay
	}

	tokens, err := google.NewFileTokenStore(cfg.TokensDir())
	if err != nil {
		a.close()
		return nil, err
	}
	a.google, err = google.NewClient(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		BaseURL:      cfg.BaseURL,
	}, tokens, a.logger, a.metrics)
	if err != nil {
		a.close()
		return nil, err
	}

	var surfaces auth.SurfaceOpener = browser.NewClientOpener()
	if opts.SystemBrowser {
		surfaces = browser.NewSystemOpener(os.Stderr, a.logger)
	}
	a.tracker = flow.NewTracker(nil)
	a.auth = auth.New(a.store, a.bus, a.tracker, a.google, surfaces,
		auth.WithPollInterval(cfg.Auth.PollInterval),
		auth.WithTimeout(cfg.Auth.Timeout),
		auth.WithLogger(a.logger),
		auth.WithMetrics(a.metrics))

	a.workflow = workflow.New(a.store, a.bus, workflow.NewArtifacts(cfg.DataDir),
		workflow.NewGmailSource(a.google, a.metrics), a.newModel(), a.google,
		workflow.WithLogger(a.logger),
		workflow.WithFlows(a.auth),
		workflow.WithTokenizer(genai.NewLazyTokenizer(cfg.OpenAI.Model, a.logger)))

	a.sc, err = server.NewServerContext(ctx, server.Services{
		Store:    a.store,
		Bus:      a.bus,
		Tracker:  a.tracker,
		Auth:     a.auth,
		Workflow: a.workflow,
		Google:   a.google,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	if a.relay != nil {
		go func() {
			if err := a.relay.Run(a.sc.Context()); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("Broadcast relay stopped", logging.Err(err))
			}
		}()
	}
	if opts.WatchSessions && cfg.SessionBackend == session.BackendFile {
		a.watchSessions()
	}
	return a, nil
}

// openStore opens the session backend. Valkey shares one client between the
// store and the broadcast relay.
func (a *app) openStore() error {
	opts := a.cfg.SessionOptions()
	var store session.Store
	if opts.Backend == session.BackendValkey {
		client, err := session.NewValkeyClient(opts.Valkey)
		if err != nil {
			return err
		}
		a.valkey = client
		store = session.NewValkeyStore(client, opts.Valkey.KeyPrefix, false)
	} else {
		var err error
		if store, err = session.Open(opts); err != nil {
			return err
		}
	}
	a.store = session.NewInstrumentedStore(store, opts.Backend, a.metrics)
	return nil
}

// watchSessions republishes FileStore changes made by other processes, such
// as a CLI signing in while the server is running.
func (a *app) watchSessions() {
	w, err := session.NewWatcher(session.SessionsDir(a.cfg.DataDir), 0, a.logger)
	if err != nil {
		a.logger.Warn("Failed to watch session directory", logging.Err(err))
		return
	}
	a.watcher = w
	go broadcast.Forward(a.sc.Context(), w.Changes(), a.local, func(userID string) bool {
		inProgress, _ := a.auth.InProgress(userID)
		return inProgress
	})
}

// newModel returns the OpenAI client, or a model that reports the missing
// configuration so authorization and history still work without a key.
func (a *app) newModel() workflow.StyleModel {
	client, err := genai.NewClient(genai.Config{
		APIKey:    a.cfg.OpenAI.APIKey,
		Model:     a.cfg.OpenAI.Model,
		BaseURL:   a.cfg.OpenAI.BaseURL,
		MaxTokens: a.cfg.OpenAI.MaxTokens,
	}, a.metrics)
	if err != nil {
		a.logger.Warn("Language model unavailable, style analysis and generation are disabled", logging.Err(err))
		return unavailableModel{err: err}
	}
	return client
}

func (a *app) close() {
	if a.sc != nil {
		if err := a.sc.Shutdown(); err != nil {
			a.logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close session store", logging.Err(err))
		}
	}
	if a.valkey != nil {
		a.valkey.Close()
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(context.Background()); err != nil {
			a.logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}
}

// unavailableModel fails every model call with the configuration error.
type unavailableModel struct {
	err error
}

func (m unavailableModel) FilterVoice(context.Context, string) (string, error) {
	return "", m.err
}

func (m unavailableModel) Generate(context.Context, string, genai.GenerateRequest, session.Profile) (string, error) {
	return "", m.err
}

func (m unavailableModel) Refine(context.Context, string, genai.RefineRequest, session.Profile) (string, error) {
	return "", m.err
}
