package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/broadcast"
	"github.com/teemow/mailsense/internal/logging"
	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/view"
)

const loginPollInterval = 250 * time.Millisecond

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Google authorization",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize mailsense to read your sent mail",
		Long: `Open the Google consent page in your browser and wait until the
authorization completes, fails or times out. Press Ctrl+C to cancel.

The OAuth callback is received on MAILSENSE_ADDR, so MAILSENSE_BASE_URL must
point at this machine (the default http://localhost:8080 does).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Authorize again even when already signed in")
	return cmd
}

func runAuthLogin(cmd *cobra.Command, force bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{SystemBrowser: true})
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.workflow.Session(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Authenticated && !force {
		fmt.Fprintln(cmd.OutOrStdout(), "Already signed in. Use --force to authorize again.")
		return nil
	}

	// The callback and completion page need a listener for the duration of
	// the flow.
	httpServer := server.New(a.sc, server.Options{
		Addr:        cfg.Addr,
		BaseURL:     cfg.BaseURL,
		Development: cfg.IsDevelopment(),
		Logger:      a.logger,
	})
	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	changed := make(chan struct{}, 1)
	tok := a.bus.Subscribe(func(m broadcast.Message) {
		if m.UserID != userID {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer a.bus.Unsubscribe(tok)

	ctrl := view.NewController(userID, a.store, a.bus, a.auth, view.NewTerminalSink(cmd.OutOrStdout()), a.logger)
	defer ctrl.Close()
	if err := ctrl.Open(ctx); err != nil {
		return err
	}
	res, err := ctrl.StartAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to start authorization: %w", err)
	}
	if res.Status == auth.StatusCancelled {
		return errors.New("authorization was cancelled")
	}

	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := a.auth.Cancel(context.WithoutCancel(ctx), userID); err != nil {
				a.logger.Warn("Failed to cancel authorization", logging.Err(err))
			}
			return errors.New("authorization cancelled")
		case err := <-serverErr:
			return fmt.Errorf("callback server failed: %w", err)
		case <-changed:
		case <-ticker.C:
		}
		if inProgress, _ := a.auth.InProgress(userID); inProgress {
			continue
		}

		rec, err := a.workflow.Session(ctx, userID)
		if err != nil {
			return err
		}
		if !rec.Authenticated {
			if rec.LastError != "" {
				return fmt.Errorf("authorization failed: %s", rec.LastError)
			}
			return errors.New("authorization did not complete")
		}
		return nil
	}
}

func newAuthStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the session is signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				st, err := a.auth.GetAuthState(ctx, userID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, st)
				}
				rec, err := a.workflow.Session(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), view.Describe(view.Render(rec, nil)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the auth state as JSON")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Google token",
		Long:  "Forget the stored Google token. Fetched mail and the analysed style are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.workflow.SignOut(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}
