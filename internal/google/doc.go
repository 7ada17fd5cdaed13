// Package google connects authorization flows to Google OAuth 2.0.
//
// Client implements the authorizer port: it builds consent URLs carrying the
// flow id as OAuth state, answers status polls from the per-user token
// store, and serves the redirect callback that exchanges the code and
// completes the flow. Tokens are stored per user and refreshed tokens are
// written back.
package google
