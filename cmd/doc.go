// Package cmd implements the command-line interface for mailsense.
//
// This package provides the following commands:
//   - serve: Start the HTTP server (JSON API, WebSocket session updates and
//     MCP over streamable HTTP) or an MCP server on stdio
//   - auth login|status|logout: Manage Google authorization from the terminal
//   - session show|reset: Inspect or reset the local session
//   - fetch, analyze, generate, refine: Run the workflow steps
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
