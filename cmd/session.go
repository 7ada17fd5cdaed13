package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/view"
)

// withApp loads the configuration, wires the components without
// instrumentation and runs fn until it returns or the command is
// interrupted.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sessionOutput is the session as the CLI prints it.
type sessionOutput struct {
	View    view.View       `json:"view"`
	Profile session.Profile `json:"profile"`
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the session",
	}
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionResetCmd())
	cmd.AddCommand(newProfileCmd())
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the session view and profile as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.workflow.Session(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, sessionOutput{
					View:    view.Render(rec, a.auth.Flow(userID)),
					Profile: rec.Profile,
				})
			})
		},
	}
}

func newSessionResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Sign out and delete fetched mail and the analysed style",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes all local data for the session; pass --yes to confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.workflow.Reset(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session reset.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var (
		p       session.Profile
		dismiss bool
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Set the writer details used when generating text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var (
					rec *session.Record
					err error
				)
				if dismiss {
					rec, err = a.workflow.DismissReminder(ctx, userID)
				} else {
					rec, err = a.workflow.UpdateProfile(ctx, userID, p)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, rec.Profile)
			})
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "Your name")
	cmd.Flags().StringVar(&p.Role, "role", "", "Your role or title")
	cmd.Flags().StringVar(&p.Organization, "organization", "", "Your organization")
	cmd.Flags().StringVar(&p.Domain, "domain", "", "Your field or industry")
	cmd.Flags().StringVar(&p.Context, "context", "", "Anything else the writing should take into account")
	cmd.Flags().BoolVar(&dismiss, "dismiss-reminder", false, "Only hide the complete-your-profile reminder")
	return cmd
}
