package auth

import (
	"net/url"
	"strconv"
	"strings"
)

// CompletionPath is the path the authorization surface lands on when the
// provider round trip is over.
const CompletionPath = "/auth/complete"

// Completion is the outcome carried by a completion URL.
type Completion struct {
	Success bool
	FlowID  string
	Reason  string
}

// ParseCompletionURL extracts the outcome from a URL of the form
// .../auth/complete?success=true|false&state=<flow id>[&reason=...].
// It returns false for any other URL.
func ParseCompletionURL(raw string) (Completion, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Completion{}, false
	}
	if !strings.HasSuffix(strings.TrimRight(u.Path, "/"), CompletionPath) {
		return Completion{}, false
	}

	q := u.Query()
	success, err := strconv.ParseBool(q.Get("success"))
	if err != nil {
		return Completion{}, false
	}
	return Completion{
		Success: success,
		FlowID:  q.Get("state"),
		Reason:  q.Get("reason"),
	}, true
}

// CompletionURL builds the completion URL for base (scheme and host).
func CompletionURL(base string, c Completion) string {
	q := url.Values{}
	q.Set("success", strconv.FormatBool(c.Success))
	if c.FlowID != "" {
		q.Set("state", c.FlowID)
	}
	if c.Reason != "" {
		q.Set("reason", c.Reason)
	}
	return strings.TrimRight(base, "/") + CompletionPath + "?" + q.Encode()
}
