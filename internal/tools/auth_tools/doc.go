// Package auth_tools provides MCP tools that drive the Google authorization
// flow of a session:
//
//   - auth_start: start a flow, or report the one already in progress
//   - auth_cancel: cancel the live flow
//   - auth_state: the durable auth state merged with the live flow
//   - auth_report_navigation: report a URL the authorization surface reached
//   - auth_signout: revoke the stored token and mark the session signed out
//
// Every tool takes an optional userId; without one the tools act on the
// local user the server was started with.
package auth_tools
