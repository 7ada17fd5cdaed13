package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultScopes are the scopes requested for style profiling: read-only
// mail access and the account address.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	"https://www.googleapis.com/auth/userinfo.email",
}
