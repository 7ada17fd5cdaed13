package google

import (
	"context"
	"net/http"

	"github.com/teemow/mailsense/internal/auth"
	"github.com/teemow/mailsense/internal/logging"
)

// FlowCompleter resolves flows from the OAuth callback.
type FlowCompleter interface {
	// FlowUser returns the user of the live flow flowID.
	FlowUser(flowID string) (string, bool)
	CompleteFlow(ctx context.Context, flowID string, success bool, reason string) bool
}

// Callback failure reasons carried on the completion URL.
const (
	ReasonUnknownFlow    = "unknown_flow"
	ReasonMissingCode    = "missing_code"
	ReasonExchangeFailed = "exchange_failed"
)

// CallbackHandler handles the OAuth redirect: it exchanges the code for the
// flow's user, completes the flow and redirects to the completion page.
// Callbacks for flows that are no longer live change nothing.
func (c *Client) CallbackHandler(flows FlowCompleter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		flowID := q.Get("state")

		redirect := func(success bool, reason string) {
			target := auth.CompletionURL(c.baseURL, auth.Completion{Success: success, FlowID: flowID, Reason: reason})
			http.Redirect(w, r, target, http.StatusFound)
		}

		userID, ok := flows.FlowUser(flowID)
		if !ok {
			c.logger.Info("OAuth callback for unknown flow", logging.FlowID(flowID))
			redirect(false, ReasonUnknownFlow)
			return
		}
		logger := c.logger.With(logging.FlowID(flowID), logging.UserHash(userID))

		if e := q.Get("error"); e != "" {
			logger.Info("Authorization declined", "reason", e)
			flows.CompleteFlow(ctx, flowID, false, e)
			redirect(false, e)
			return
		}

		code := q.Get("code")
		if code == "" {
			flows.CompleteFlow(ctx, flowID, false, ReasonMissingCode)
			redirect(false, ReasonMissingCode)
			return
		}

		if err := c.Exchange(ctx, userID, code); err != nil {
			logger.Warn("OAuth code exchange failed", logging.Err(err))
			flows.CompleteFlow(ctx, flowID, false, ReasonExchangeFailed)
			redirect(false, ReasonExchangeFailed)
			return
		}

		flows.CompleteFlow(ctx, flowID, true, "")
		redirect(true, "")
	})
}
